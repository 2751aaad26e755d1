// Package domainerrors provides coded errors for crossing layer boundaries.
//
// Services return coded errors; transports translate codes into their own
// vocabulary (HTTP status, exit code). Stores return sentinel errors instead
// (pkg/platform/sentinel) and services translate those into codes here.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for callers that need to branch on failure kind
// without string matching.
type Code string

const (
	// CodeBadRequest marks malformed requests at a transport boundary.
	CodeBadRequest Code = "bad_request"
	// CodeInvalidInput marks semantically invalid input, e.g. a payload
	// that cannot be canonically serialized. Not retryable as-is.
	CodeInvalidInput Code = "invalid_input"
	// CodeConflict marks a lost race, e.g. a chain conflict between
	// concurrent appends. Retryable with fresh state.
	CodeConflict Code = "conflict"
	// CodeNotFound marks a missing resource.
	CodeNotFound Code = "not_found"
	// CodeTimeout marks a deadline hit before the operation resolved.
	CodeTimeout Code = "timeout"
	// CodeUnavailable marks infrastructure failure (store unreachable).
	// Retryable with backoff.
	CodeUnavailable Code = "unavailable"
	// CodeInternal marks a bug or an unclassified failure.
	CodeInternal Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a code and message. Returns nil if err is nil.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code == code
	}
	return false
}

// CodeOf returns the code carried by err, or CodeInternal when err carries
// none.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeInternal
}
