// Package errors provides coded domain errors for the curation pipeline.
//
// Usage:
//
//	// In adapters - return typed errors
//	if resp.StatusCode == http.StatusUnauthorized {
//	    return errors.Adapter("source rejected credentials")
//	}
//
//	// In the orchestrator - check with errors.Is
//	if errors.Is(err, errors.ErrAdapter) {
//	    return report, err // fatal: abort the run
//	}
//
//	// Or use the Code directly for switch statements
//	var domainErr *errors.Error
//	if errors.As(err, &domainErr) && domainErr.Code.Fatal() {
//	    os.Exit(1)
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
	New    = errors.New
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound         Code = "NOT_FOUND"
	CodeValidation       Code = "VALIDATION"
	CodeConflict         Code = "CONFLICT"
	CodeInternal         Code = "INTERNAL"
	CodeAdapter          Code = "ADAPTER"
	CodeRecordProcessing Code = "RECORD_PROCESSING"
	CodeEnrichment       Code = "ENRICHMENT"
	CodePersistence      Code = "PERSISTENCE"
)

// Fatal reports whether an error with this code aborts an import run.
// Only adapter (credential or fetch) failures are fatal.
func (c Code) Fatal() bool {
	return c == CodeAdapter
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error  // unexported, for wrapping
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound         = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation       = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict         = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal         = &Error{Code: CodeInternal, Message: "internal error"}
	ErrAdapter          = &Error{Code: CodeAdapter, Message: "source adapter failed"}
	ErrRecordProcessing = &Error{Code: CodeRecordProcessing, Message: "record processing failed"}
	ErrEnrichment       = &Error{Code: CodeEnrichment, Message: "enrichment failed"}
	ErrPersistence      = &Error{Code: CodePersistence, Message: "persistence failed"}
)

// IsFatal reports whether err carries a fatal code anywhere in its chain.
func IsFatal(err error) bool {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code.Fatal()
	}
	return false
}

// CodeOf returns the code of the first *Error in err's chain, or CodeInternal.
func CodeOf(err error) Code {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeInternal
}

// Constructor functions for creating errors with custom messages.

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Adapter creates a fatal source adapter error.
func Adapter(msg string) *Error {
	return &Error{Code: CodeAdapter, Message: msg}
}

// Adapterf creates a fatal source adapter error with formatted message.
func Adapterf(format string, args ...any) *Error {
	return &Error{Code: CodeAdapter, Message: fmt.Sprintf(format, args...)}
}

// RecordProcessingf creates a per-record processing error with formatted message.
func RecordProcessingf(format string, args ...any) *Error {
	return &Error{Code: CodeRecordProcessing, Message: fmt.Sprintf(format, args...)}
}

// Enrichmentf creates a non-fatal enrichment error with formatted message.
func Enrichmentf(format string, args ...any) *Error {
	return &Error{Code: CodeEnrichment, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
