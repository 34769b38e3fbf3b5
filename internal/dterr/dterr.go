// Package dterr classifies state-engine errors so callers can branch on
// intent (errors.As) instead of matching message text.
package dterr

import (
	"errors"
	"fmt"
)

// Kind categorizes an Error per the core's error taxonomy.
type Kind int

const (
	// NotFound indicates a named variable/state/node is absent.
	NotFound Kind = iota
	// InvalidArgument indicates malformed text input, a mis-sized property,
	// or wrong reg arity.
	InvalidArgument
	// OutOfRange indicates an integer exceeds its declared type width.
	OutOfRange
	// SchemaConflict indicates overlapping variable regions or a size
	// mismatch between a variable and its type.
	SchemaConflict
	// IntegrityFailure indicates a bad CRC, magic mismatch, or HMAC
	// mismatch.
	IntegrityFailure
	// NoSpace indicates the backing region is too small for the required
	// number of redundant copies.
	NoSpace
	// BackendUnavailable indicates the medium geometry could not be probed
	// or the backend-type string is unknown.
	BackendUnavailable
	// PermissionDenied indicates a write to a read-only variable type or a
	// read-only open.
	PermissionDenied
	// IOError indicates an underlying read/write/lseek/ioctl failure.
	IOError
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not-found"
	case InvalidArgument:
		return "invalid-argument"
	case OutOfRange:
		return "out-of-range"
	case SchemaConflict:
		return "schema-conflict"
	case IntegrityFailure:
		return "integrity-failure"
	case NoSpace:
		return "no-space"
	case BackendUnavailable:
		return "backend-unavailable"
	case PermissionDenied:
		return "permission-denied"
	case IOError:
		return "io-error"
	default:
		return fmt.Sprintf("unknown-error-kind-%d", int(k))
	}
}

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind with a formatted message.
func New(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error of the given kind wrapping an underlying cause.
func Wrap(k Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: k, Msg: fmt.Sprintf(format, args...), Err: err}
}

// Is reports whether err is a *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == k
}
