package waha

import (
	"strings"
	"unicode"
)

const (
	MsgPhoneRequired = "phone required"
	MsgPhoneNoDigits = "phone must contain digits"
	MsgNotConfigured = "gateway not configured"
	MsgNotFound      = "number not found on WhatsApp. Check that the number is correct."
	MsgProfileAbsent = "number not found on WhatsApp"
	MsgGatewayDown   = "could not reach the WhatsApp gateway. Check the connection and gateway configuration."

	brazilianMobileHint = ` Hint: Brazilian mobile numbers usually need a leading "9" (e.g. +55 11 99999-9999).`
)

// Digits strips everything but ASCII digits.
func Digits(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// withRegionalHint appends the Brazilian mobile "9" hint when the input
// looks like a +55 number.
func withRegionalHint(message, phone string) string {
	if strings.Contains(phone, "55") || strings.HasPrefix(phone, "+55") {
		return message + brazilianMobileHint
	}
	return message
}

// DisplayPhone turns a chat identifier ("5511999999999@c.us") into the
// number shown to users. Values without a suffix are returned unchanged.
func DisplayPhone(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		return chatID[:i]
	}
	return chatID
}

// IsChatID reports whether value already is a canonical identifier.
func IsChatID(value string) bool {
	at := strings.IndexByte(value, '@')
	if at <= 0 || at == len(value)-1 {
		return false
	}
	for _, r := range value[:at] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
