package app

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/andredfaria/daily/internal/checklist"
	"github.com/andredfaria/daily/internal/waha"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("profile_text", func(fl validator.FieldLevel) bool {
		n := runeLen(strings.TrimSpace(fl.Field().String()))
		return n >= 2 && n <= 100
	})
	_ = v.RegisterValidation("profile_phone", func(fl validator.FieldLevel) bool {
		return validPhone(fl.Field().String())
	})
	_ = v.RegisterValidation("checklist_item", func(fl validator.FieldLevel) bool {
		item := strings.TrimSpace(fl.Field().String())
		return item != "" && runeLen(item) <= checklist.MaxItemLength
	})
	return v
}

// validPhone accepts a canonical chat id, or 10 to 15 digits without a
// leading zero once the usual separators are removed.
func validPhone(raw string) bool {
	if waha.IsChatID(raw) {
		return true
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '+', '-', '(', ')', ' ':
			return -1
		}
		return r
	}, raw)
	if len(cleaned) < 10 || len(cleaned) > 15 || cleaned[0] == '0' {
		return false
	}
	for _, r := range cleaned {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

var fieldMessages = map[string]string{
	"profile_text":   "Must be between 2 and 100 characters",
	"profile_phone":  "Enter a phone number with country and area code, digits only",
	"checklist_item": "Checklist items must be non-empty and at most 200 characters",
	"email":          "Invalid email address",
	"required":       "This field is required",
}

// fieldTagMessages override fieldMessages for one field.
var fieldTagMessages = map[string]string{
	"time_to_send.min": "Send time must be an hour between 0 and 23",
	"time_to_send.max": "Send time must be an hour between 0 and 23",
	"password.min":     "Password must be at least 8 characters",
}

// validateFields runs struct validation and flattens failures into a
// field -> message map. Nil means valid.
func validateFields(target any) map[string]string {
	err := validate.Struct(target)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return map[string]string{"_": "Invalid input"}
	}
	problems := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		field := fe.Field()
		// option[2] -> option
		if i := strings.IndexByte(field, '['); i > 0 {
			field = field[:i]
		}
		if _, seen := problems[field]; seen {
			continue
		}
		message, ok := fieldTagMessages[field+"."+fe.Tag()]
		if !ok {
			message, ok = fieldMessages[fe.Tag()]
		}
		if !ok {
			message = "Invalid value"
		}
		problems[field] = message
	}
	return problems
}
