// Package coreerr defines the stable error taxonomy shared by every
// component of the conversation core. Components never return ad-hoc
// errors to a caller outside their own package; they classify failures
// into one of these kinds first.
package coreerr

import "errors"

// Kind is one of the stable error kinds from the propagation policy.
type Kind string

const (
	Unauthorized Kind = "unauthorized"
	Forbidden    Kind = "forbidden"
	Invalid      Kind = "invalid"
	NotFound     Kind = "not_found"
	Conflict     Kind = "conflict"
	Timeout      Kind = "timeout"
	CircuitOpen  Kind = "circuit_open"
	Cancelled    Kind = "cancelled"
	Unavailable  Kind = "unavailable"
	Internal     Kind = "internal"
)

// Error wraps an underlying cause with a stable Kind so callers can branch
// on Kind without inspecting message text.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return string(e.Kind) + ": " + e.Message
	}
	if e.Cause != nil {
		return string(e.Kind) + ": " + e.Cause.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind with a message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Cause: cause}
}

// As extracts the Kind of err if it is (or wraps) a *Error, defaulting to
// Internal for anything unclassified — an unexpected condition is always
// caught at the boundary and reported as a bug, never leaked as a panic.
func As(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err classifies as the given kind.
func Is(err error, kind Kind) bool {
	return As(err) == kind
}
