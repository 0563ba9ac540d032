// Package qsferr defines the stable error discriminants shared by every QSF
// component. Each error carries a Kind that callers can extract with KindOf
// and compare against the Kind constants below, plus a free-form message
// for humans.
package qsferr

import "fmt"

// Kind is a stable error discriminant. New Kinds are append-only.
type Kind string

const (
	Truncated            Kind = "Truncated"
	ValueOutOfRange      Kind = "ValueOutOfRange"
	ManifestDecode       Kind = "ManifestDecode"
	UnknownManifestShape Kind = "UnknownManifestShape"
	CidMismatch          Kind = "CidMismatch"
	DecryptFailure       Kind = "DecryptFailure"
	UnresolvedFilter     Kind = "UnresolvedFilter"
	EmptyCollector       Kind = "EmptyCollector"
)

// Error is the concrete error type returned across QSF packages: a small
// typed struct with a stable discriminant field, rather than stdlib's
// errors.New.
type Error struct {
	Kind    Kind
	Message string
	// Filter carries the filter "type" discriminant for UnresolvedFilter.
	Filter string
	// Err wraps an underlying cause, if any (e.g. an io error).
	Err error
}

func (e *Error) Error() string {
	if e.Filter != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Kind, e.Message, e.Filter)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is implements errors.Is against a bare Kind sentinel comparison: a caller
// can do errors.Is(err, qsferr.Truncated) if the error package were to expose
// sentinels, but since Kind is not itself an error, the conventional check is
// qsferr.KindOf(err) == qsferr.Truncated. Is is provided for comparing two
// *Error values with the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds an *Error of the given Kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given Kind, wrapping an underlying cause.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, or "" otherwise.
func KindOf(err error) Kind {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ""
}
