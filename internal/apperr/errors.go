package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies failures surfaced by the service layer.
type Kind string

const (
	// KindInvalidInput covers malformed identifiers, out-of-range ratings and bad bounds.
	KindInvalidInput Kind = "INVALID_INPUT"

	// KindNotFound indicates a referenced facility or review does not exist.
	KindNotFound Kind = "NOT_FOUND"

	// KindForbidden indicates the caller does not own the resource.
	KindForbidden Kind = "FORBIDDEN"

	// KindConflict is a uniqueness violation the service could not absorb.
	KindConflict Kind = "CONFLICT"

	// KindUnavailable indicates a storage timeout or connection failure; safe to retry.
	KindUnavailable Kind = "UNAVAILABLE"

	// KindInternal is everything else.
	KindInternal Kind = "INTERNAL"
)

// Error is an application error carrying a Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap implements the unwrap interface
func (e *Error) Unwrap() error {
	return e.Err
}

// InvalidInput creates a new invalid input error
func InvalidInput(message string) *Error {
	return &Error{Kind: KindInvalidInput, Message: message}
}

// NotFound creates a new not found error
func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Forbidden creates a new forbidden error
func Forbidden(message string) *Error {
	return &Error{Kind: KindForbidden, Message: message}
}

// Conflict creates a new conflict error
func Conflict(message string, err error) *Error {
	return &Error{Kind: KindConflict, Message: message, Err: err}
}

// Unavailable creates a new retryable storage error
func Unavailable(message string, err error) *Error {
	return &Error{Kind: KindUnavailable, Message: message, Err: err}
}

// Internal creates a new internal error
func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}
