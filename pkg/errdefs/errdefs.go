// Package errdefs defines the structured error taxonomy shared by the
// compilation and publication pipeline. Every error carries a stable kind,
// a human-readable message, and a details map sufficient for an operator
// to diagnose the failure without reading source.
package errdefs

import (
	"fmt"
	"sort"
	"strings"
)

// Kind is the stable, machine-readable error classification.
type Kind string

const (
	KindNotFound    Kind = "NOT_FOUND"
	KindConflict    Kind = "CONFLICT"
	KindValidation  Kind = "VALIDATION_FAILURE"
	KindCompilation Kind = "COMPILATION_FAILURE"
	KindStorage     Kind = "STORAGE_FAILURE"
	KindPersistence Kind = "PERSISTENCE_FAILURE"
)

// Error is the domain error type with structured context.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Details[k])
		}
		b.WriteString(")")
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Kind == t.Kind
	}
	return false
}

// WithDetail returns e with an additional details entry. The receiver is
// mutated and returned for chaining; errors are built once and not shared.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates an error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// NotFound creates a NOT_FOUND error.
func NotFound(format string, args ...any) *Error {
	return Newf(KindNotFound, format, args...)
}

// Conflict creates a CONFLICT error.
func Conflict(format string, args ...any) *Error {
	return Newf(KindConflict, format, args...)
}

// Validation creates a VALIDATION_FAILURE error.
func Validation(format string, args ...any) *Error {
	return Newf(KindValidation, format, args...)
}

// Compilation creates a COMPILATION_FAILURE error.
func Compilation(format string, args ...any) *Error {
	return Newf(KindCompilation, format, args...)
}

// Storage creates a STORAGE_FAILURE error wrapping cause.
func Storage(message string, cause error) *Error {
	return Wrap(KindStorage, message, cause)
}

// Persistence creates a PERSISTENCE_FAILURE error wrapping cause.
func Persistence(message string, cause error) *Error {
	return Wrap(KindPersistence, message, cause)
}

// KindOf returns the kind of err if it is (or wraps) a domain error,
// or the empty string otherwise.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ""
		}
		err = u.Unwrap()
	}
	return ""
}

// IsKind reports whether err is (or wraps) a domain error of the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
