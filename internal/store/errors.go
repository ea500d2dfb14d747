package store

import (
	"errors"
	"fmt"

	domainerrors "github.com/listenupapp/testimonials/internal/errors"
)

// Error is a store error carrying a domain error code.
type Error struct {
	Code    domainerrors.Code // Domain error code
	Message string            // User-facing message
	Err     error             // Underlying error (optional)
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any store error with the same code, and the domain sentinel for that code.
func (e *Error) Is(target error) bool {
	var se *Error
	if errors.As(target, &se) {
		return se.Code == e.Code
	}
	var de *domainerrors.Error
	if errors.As(target, &de) {
		return de.Code == e.Code
	}
	return false
}

// WithMessage returns a new error with a custom message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{
		Code:    e.Code,
		Message: msg,
		Err:     e.Err,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// Sentinel errors.
var (
	ErrNotFound = &Error{
		Code:    domainerrors.CodeNotFound,
		Message: "resource not found",
	}

	ErrAlreadyExists = &Error{
		Code:    domainerrors.CodeConflict,
		Message: "resource already exists",
	}

	ErrInvalidInput = &Error{
		Code:    domainerrors.CodeValidation,
		Message: "invalid input",
	}
)
