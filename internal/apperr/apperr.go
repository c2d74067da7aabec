// Package apperr defines the error taxonomy shared by services and HTTP handlers.
package apperr

import (
	"errors"
	"net/http"
	"sort"
	"strings"
)

// Kind classifies an error for the caller.
type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindRule
	KindNotFound
	KindAccessDenied
	KindRateLimited
	KindStorage
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_failed"
	case KindRule:
		return "business_rule_violation"
	case KindNotFound:
		return "not_found"
	case KindAccessDenied:
		return "access_denied"
	case KindRateLimited:
		return "rate_limited"
	case KindStorage:
		return "storage_failure"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried through the service layer.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+": "+e.Fields[k])
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports field-level problems with the submitted data.
func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

// Field is shorthand for a validation error on a single field.
func Field(name, message string) *Error {
	return Validation(map[string]string{name: message})
}

// Rule reports a violated business rule as a form-level error.
func Rule(message string) *Error {
	return &Error{Kind: KindRule, Message: message}
}

// NotFound reports a missing record. Records owned by another librarian are reported the same way.
func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func AccessDenied(message string) *Error {
	return &Error{Kind: KindAccessDenied, Message: message}
}

func RateLimited(message string) *Error {
	return &Error{Kind: KindRateLimited, Message: message}
}

// Storage wraps a persistence failure. The cause is kept for logs and never shown to clients.
func Storage(op string, err error) *Error {
	return &Error{Kind: KindStorage, Message: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// FieldsOf returns the field errors carried by err, if any.
func FieldsOf(err error) map[string]string {
	var e *Error
	if errors.As(err, &e) {
		return e.Fields
	}
	return nil
}

// Status maps an error to the HTTP status code used to report it.
func Status(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindRule:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	case KindAccessDenied:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the message safe to show to a client.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Kind != KindStorage {
		return e.Message
	}
	return "operation failed"
}
