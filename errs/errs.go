// Package errs defines the error classes surfaced by the chat session core.
//
// Every failure leaving the core is wrapped in an *Error whose Kind is one of the
// sentinels below, so callers can branch with errors.Is and decide whether to retry:
//   - ErrConfiguration: missing credential, malformed config file (fatal).
//   - ErrConnection: dial/read/write failure including timeouts (retryable).
//   - ErrAuthentication: the chat server rejected the credential (fatal for the session).
//   - ErrPersistence: store directory/file create, read or write failure (fatal).
package errs

import (
	"errors"
	"fmt"
)

var (
	ErrConfiguration  = errors.New("configuration error")
	ErrConnection     = errors.New("connection error")
	ErrAuthentication = errors.New("authentication error")
	ErrPersistence    = errors.New("persistence error")
)

// Error carries the class sentinel, the failing operation and the underlying cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func wrap(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Configuration wraps err as a configuration failure of op.
func Configuration(op string, err error) error { return wrap(ErrConfiguration, op, err) }

// Connection wraps err as a connection failure of op.
func Connection(op string, err error) error { return wrap(ErrConnection, op, err) }

// Authentication wraps err as an authentication failure of op.
func Authentication(op string, err error) error { return wrap(ErrAuthentication, op, err) }

// Persistence wraps err as a persistence failure of op.
func Persistence(op string, err error) error { return wrap(ErrPersistence, op, err) }

// Class represents whether an error should be retried or not.
type Class int

const (
	// ClassUnknown indicates the error does not belong to a known class.
	ClassUnknown Class = iota
	// ClassRetryable indicates the caller may retry (transient network failures).
	ClassRetryable
	// ClassFatal indicates retrying without operator action is pointless.
	ClassFatal
)

// String returns a human-readable name for the error class.
func (c Class) String() string {
	switch c {
	case ClassRetryable:
		return "retryable"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classify maps err onto a retry class. Authentication is checked before connection so
// that a rejected login is never retried blindly.
func Classify(err error) Class {
	switch {
	case err == nil:
		return ClassUnknown
	case errors.Is(err, ErrAuthentication),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrPersistence):
		return ClassFatal
	case errors.Is(err, ErrConnection):
		return ClassRetryable
	default:
		return ClassUnknown
	}
}

// IsRetryable reports whether err is in the retryable class.
func IsRetryable(err error) bool {
	return Classify(err) == ClassRetryable
}

// IsFatal reports whether err is in the fatal class.
func IsFatal(err error) bool {
	return Classify(err) == ClassFatal
}
