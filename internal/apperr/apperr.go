// Package apperr defines the outcome taxonomy shared by the scheduling core.
// Every rejected operation returns an *Error whose Code says why.
package apperr

import (
	"errors"
	"net/http"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeValidation     Code = "VALIDATION"
	CodeUnauthorized   Code = "UNAUTHORIZED"
	CodeNotFound       Code = "NOT_FOUND"
	CodeDuplicateVote  Code = "DUPLICATE_VOTE"
	CodeAlreadyInvited Code = "ALREADY_INVITED"
	CodeNotInvited     Code = "NOT_INVITED"
)

// HTTPStatus maps the code to the status the JSON adapter responds with.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeValidation:
		return http.StatusUnprocessableEntity
	case CodeUnauthorized, CodeNotInvited:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDuplicateVote, CodeAlreadyInvited:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a domain outcome with structured metadata.
type Error struct {
	Code    Code
	Message string
	// Fields holds per-field validation messages.
	Fields map[string]string
	Cause  error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// Validation creates a validation error carrying per-field messages.
func Validation(fields map[string]string) *Error {
	return &Error{Code: CodeValidation, Message: "validation failed", Fields: fields}
}

// Sentinels for errors.Is comparisons; matching is by code only.
var (
	ErrValidation     = New(CodeValidation, "validation failed")
	ErrUnauthorized   = New(CodeUnauthorized, "not authorized")
	ErrNotFound       = New(CodeNotFound, "not found")
	ErrDuplicateVote  = New(CodeDuplicateVote, "already voted for this date")
	ErrAlreadyInvited = New(CodeAlreadyInvited, "already invited")
	ErrNotInvited     = New(CodeNotInvited, "not invited to this event")
)

// CodeOf returns the code of the first *Error in err's chain, or "" if none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
