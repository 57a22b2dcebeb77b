// Package domainerrors carries coded errors across service boundaries.
//
// Services return *Error values so transport layers can map a failure to a
// response without inspecting messages. Stores should return sentinel errors
// (see pkg/platform/sentinel) and let the calling service choose a code.
package domainerrors

import (
	"errors"
	"fmt"
	"maps"
)

// Code classifies a failure for callers and transports.
type Code string

const (
	// CodeValidation is a locally recoverable input error. It usually carries
	// per-field messages so callers can show every problem at once.
	CodeValidation Code = "validation"
	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	CodeConflict   Code = "conflict"
	// CodeUnauthorized means the caller must authenticate before continuing.
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	// CodeInvalidState is a routing or programming defect: an operation was
	// attempted while a prerequisite was missing. It is never a user message.
	CodeInvalidState       Code = "invalid_state"
	CodeInvariantViolation Code = "invariant_violation"
	// CodeExternalFailure is reported by a collaborator (payment gateway,
	// verification provider). Retrying from the current step is always safe.
	CodeExternalFailure Code = "external_failure"
	CodeRateLimited     Code = "rate_limited"
	CodeTimeout         Code = "timeout"
	CodeInternal        Code = "internal"
)

// Error is a coded error with optional field details and an optional cause.
type Error struct {
	Code    Code
	Message string
	Fields  map[string]string
	Meta    map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	return &Error{Code: code, Message: message, Err: err}
}

// NewValidation reports one or more field problems. The returned error
// owns a copy of fields.
func NewValidation(message string, fields map[string]string) error {
	return &Error{Code: CodeValidation, Message: message, Fields: maps.Clone(fields)}
}

// WithMeta returns a coded error carrying extra key/value details, e.g. a
// continuation URL or a retry hint.
func WithMeta(code Code, message string, meta map[string]string) error {
	return &Error{Code: code, Message: message, Meta: maps.Clone(meta)}
}

// As returns the outermost *Error in err's chain.
func As(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// HasCode reports whether the outermost coded error in err's chain has code.
func HasCode(err error, code Code) bool {
	de, ok := As(err)
	return ok && de.Code == code
}

// CodeOf returns the code of err, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	if de, ok := As(err); ok {
		return de.Code
	}
	return CodeInternal
}

// FieldsOf returns the per-field messages of a validation error.
func FieldsOf(err error) map[string]string {
	if de, ok := As(err); ok {
		return de.Fields
	}
	return nil
}

// MetaOf returns the metadata attached by WithMeta.
func MetaOf(err error) map[string]string {
	if de, ok := As(err); ok {
		return de.Meta
	}
	return nil
}
