package app

import (
	"fmt"
	"net/http"
)

// Kind classifies failures so the HTTP layer and tests can tell them
// apart without parsing messages.
type Kind string

const (
	KindUnauthenticated Kind = "unauthenticated"
	KindForbidden       Kind = "forbidden"
	KindBadInput        Kind = "bad_input"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindWeakSecret      Kind = "weak_secret"
	KindUpstream        Kind = "upstream_failure"
	KindUnknown         Kind = "unknown"
)

type DomainError struct {
	Status  int
	Kind    Kind
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, kind Kind, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Kind:    kind,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func errUnauthenticated() *DomainError {
	return domainError(http.StatusUnauthorized, KindUnauthenticated, "UNAUTHORIZED", "Unauthorized", nil)
}

func errForbidden() *DomainError {
	return domainError(http.StatusForbidden, KindForbidden, "FORBIDDEN", "Forbidden", nil)
}

func errBadInput(code, message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, KindBadInput, code, message, details)
}

func errValidation(details map[string]string) *DomainError {
	return errBadInput("VALIDATION_ERROR", "Some fields are invalid", details)
}

// errNotFound uses status because some admin routes answer a missing
// target with 400 instead of 404.
func errNotFound(status int, code, message string) *DomainError {
	return domainError(status, KindNotFound, code, message, nil)
}

func errConflict(status int, code, message string) *DomainError {
	return domainError(status, KindConflict, code, message, nil)
}

func errWeakSecret(message string) *DomainError {
	return domainError(http.StatusBadRequest, KindWeakSecret, "WEAK_PASSWORD", message, nil)
}

func errUpstream(message string) *DomainError {
	return domainError(http.StatusBadGateway, KindUpstream, "UPSTREAM_ERROR", message, nil)
}

func errUnknown(code, message string) *DomainError {
	return domainError(http.StatusInternalServerError, KindUnknown, code, message, nil)
}
