// Package domainerrors carries the error taxonomy shared by services and the
// HTTP layer. Services return *Error values; transport maps the Code to a
// status and a JSON envelope.
package domainerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	CodeBadRequest               Code = "bad_request"
	CodeMissingFields            Code = "missing_fields"
	CodeIncompleteAddress        Code = "incomplete_address"
	CodeWeakPassword             Code = "weak_password"
	CodeConflict                 Code = "user_exists"
	CodeInvalidCredentials       Code = "invalid_credentials"
	CodeProfilePersistenceFailed Code = "profile_persistence_failed"
	CodeProviderError            Code = "provider_error"
	CodeProviderUnavailable      Code = "provider_unavailable"
	CodeUnauthenticated          Code = "unauthenticated"
	CodeRateLimited              Code = "rate_limited"
	CodeNotFound                 Code = "not_found"
	CodeInternal                 Code = "internal_error"
)

// Error is a domain error with a machine readable code. Fields lists the
// offending input fields for validation failures.
type Error struct {
	Code    Code
	Message string
	Fields  []string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, New(code, "")) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code Code, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, Err: err}
}

// WithFields returns a validation error naming the offending fields.
func WithFields(code Code, msg string, fields []string) *Error {
	return &Error{Code: code, Message: msg, Fields: fields}
}

// HasCode reports whether err (or anything it wraps) is a domain error with code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// As extracts the outermost domain error from err.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}
