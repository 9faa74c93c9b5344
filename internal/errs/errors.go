// Package errs defines the error taxonomy shared across the core: a small,
// closed set of kinds that callers can switch on instead of parsing messages.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the error taxonomy entries.
type Kind string

const (
	KindConfig             Kind = "config"
	KindRequest            Kind = "request"
	KindHTTPStatus         Kind = "http_status"
	KindSchemaIncompatible Kind = "schema_incompatible"
	KindValidation         Kind = "validation"
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindInjectionRejected  Kind = "injection_rejected"
)

// Error is the core's typed error. Message is always safe to log: callers
// must never put response bodies, headers, or document contents into it.
type Error struct {
	Kind    Kind
	Method  string
	Path    string
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Method != "" && e.Path != "":
		return fmt.Sprintf("%s: %s %s (status %d): %s", e.Kind, e.Method, e.Path, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

func HTTPStatus(method, path string, status int, err error) *Error {
	return &Error{Kind: KindHTTPStatus, Method: method, Path: path, Status: status, Message: "request failed after retries", Err: err}
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
