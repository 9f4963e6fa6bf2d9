// Package apperr provides a small structured error type for failures that
// cross a handler boundary and need a stable code for logging/metrics.
package apperr

import "fmt"

// Code classifies an error for logging and metric labeling.
type Code string

const (
	CodeNotFound    Code = "NOT_FOUND"
	CodeInvalid     Code = "INVALID"
	CodeInternal    Code = "INTERNAL"
	CodeUnavailable Code = "UNAVAILABLE"
	CodeTimeout     Code = "TIMEOUT"
)

// Error is a structured application error carrying a stable code.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound builds a CodeNotFound error.
func NotFound(resource string) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

// Invalid builds a CodeInvalid error for a local invariant violation
// (missing source file, malformed payload, and similar caller mistakes).
func Invalid(message string, err error) *Error {
	return &Error{Code: CodeInvalid, Message: message, Err: err}
}

// Internal builds a CodeInternal error for unexpected local failures.
func Internal(message string, err error) *Error {
	return &Error{Code: CodeInternal, Message: message, Err: err}
}

// Unavailable builds a CodeUnavailable error for a transient dependency
// failure (database acquisition, disk rename race) that redelivery should
// recover from.
func Unavailable(message string, err error) *Error {
	return &Error{Code: CodeUnavailable, Message: message, Err: err}
}

// Timeout builds a CodeTimeout error.
func Timeout(operation string) *Error {
	return &Error{Code: CodeTimeout, Message: fmt.Sprintf("%s timed out", operation)}
}
