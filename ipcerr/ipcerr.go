// Package ipcerr defines the typed error taxonomy every ipcseg operation
// reports through. No exceptions leak across the API boundary; every
// fallible call returns one of these kinds, wrapped around the native cause
// where one exists.
package ipcerr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Kind classifies why an operation failed.
type Kind int

const (
	Unknown Kind = iota
	AlreadyExists
	NotFound
	PermissionDenied
	InvalidArgument
	OutOfMemory
	TypeMismatch
	IO
)

func (k Kind) String() string {
	switch k {
	case AlreadyExists:
		return `already-exists`
	case NotFound:
		return `not-found`
	case PermissionDenied:
		return `permission-denied`
	case InvalidArgument:
		return `invalid-argument`
	case OutOfMemory:
		return `out-of-memory`
	case TypeMismatch:
		return `type-mismatch`
	case IO:
		return `io`
	default:
		return `unknown`
	}
}

// Error is the concrete error type carried by every ipcseg failure.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}

	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New creates a bare error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf creates a bare error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a native cause.
func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// Is reports whether err is an ipcerr.Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}

	return false
}

// FromErrno maps a raw OS error (typically a unix.Errno returned by
// golang.org/x/sys/unix) onto the kind taxonomy above. This is the
// "last_os_error" utility the specification treats as an external
// collaborator; it is intentionally this small.
func FromErrno(err error) Kind {
	switch {
	case err == nil:
		return Unknown
	case errors.Is(err, unix.EEXIST):
		return AlreadyExists
	case errors.Is(err, unix.ENOENT):
		return NotFound
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		return PermissionDenied
	case errors.Is(err, unix.EINVAL):
		return InvalidArgument
	case errors.Is(err, unix.ENOMEM):
		return OutOfMemory
	default:
		return IO
	}
}

// WrapErrno wraps a raw OS error using FromErrno to pick its kind.
func WrapErrno(msg string, cause error) *Error {
	return Wrap(FromErrno(cause), msg, cause)
}
