package strand

import (
	"errors"
	"fmt"
)

// Kind discriminates error categories so callers can branch
// programmatically instead of string-matching messages.
type Kind string

const (
	// Connection-level kinds.
	KindConnection Kind = "connection"
	KindClosed     Kind = "closed"

	// Data-integrity kinds.
	KindJobNotFound   Kind = "job_not_found"
	KindSerialization Kind = "serialization"

	// Execution kinds.
	KindTimeout   Kind = "timeout"
	KindExecution Kind = "execution"
	KindOperation Kind = "operation"

	// Coordination kinds.
	KindDependency  Kind = "dependency_not_satisfied"
	KindRateLimited Kind = "rate_limit_exceeded"
)

// Error is the structured error type returned across package boundaries.
// It carries a Kind discriminator, a human-readable message, and an
// optional wrapped cause.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping a cause. Returns nil if err is nil.
func Wrap(kind Kind, message string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("strand: %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("strand: %s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same kind, so
// errors.Is(err, &Error{Kind: KindTimeout}) matches any timeout error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf extracts the Kind from an error chain.
// Returns the empty Kind for nil or untyped errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any error in the chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// Retriable reports whether an error of this kind may be retried.
// Closed-resource and serialization failures are permanent: retrying
// cannot change the outcome.
func Retriable(err error) bool {
	switch KindOf(err) {
	case KindClosed, KindSerialization:
		return false
	default:
		return true
	}
}
