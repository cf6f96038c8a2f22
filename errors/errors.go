// Package errors implements the error taxonomy used across the driver
// core. It keeps the teacher's wrap-with-stack-trace shape (New, Wrap,
// Inner, InnerMost) and layers a small set of matchable Kinds on top so
// callers can switch on what went wrong instead of parsing messages.
package errors

import (
	"fmt"
	"runtime/debug"
	"strings"
)

// Kind classifies an Error into one of the taxonomy buckets from the
// driver's error handling design. The zero value, KindUnknown, means no
// kind was assigned (a plain wrapped error).
type Kind int

const (
	KindUnknown Kind = iota
	// KindProtocol marks a bad marker, bad field count, unexpected struct
	// at value position, or malformed chunk header. Not retried; the
	// connection that produced it is closed.
	KindProtocol
	// KindAuthentication marks a FAILURE received during INIT carrying an
	// authentication error code.
	KindAuthentication
	// KindSecurity marks a handshake/TLS/version-negotiation failure.
	KindSecurity
	// KindClient marks a server-reported client-side fault (bad query,
	// wrong access mode). The connection remains usable after ACK_FAILURE.
	KindClient
	// KindTransient marks a server response asking the caller to retry.
	// The core does not retry; the connection remains usable after
	// ACK_FAILURE.
	KindTransient
	// KindSessionExpired is a derived signal meaning a connection's host
	// is no longer suitable for the role it was acquired for.
	KindSessionExpired
	// KindServiceUnavailable means no path to any server in the required
	// role exists after exhausting routers and seeds.
	KindServiceUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindProtocol:
		return "ProtocolError"
	case KindAuthentication:
		return "AuthenticationError"
	case KindSecurity:
		return "SecurityError"
	case KindClient:
		return "ClientError"
	case KindTransient:
		return "TransientError"
	case KindSessionExpired:
		return "SessionExpired"
	case KindServiceUnavailable:
		return "ServiceUnavailable"
	default:
		return "Error"
	}
}

// Error is the base error type. It adds a stack trace captured at the
// point it was created and supports wrapping an inner error, mirroring
// the teacher's errors.Error.
type Error struct {
	msg     string
	kind    Kind
	wrapped error
	stack   []byte
}

// New makes a new unclassified error.
func New(msg string, args ...interface{}) *Error {
	return &Error{
		msg:   fmt.Sprintf(msg, args...),
		stack: debug.Stack(),
	}
}

// NewKind makes a new error classified with the given Kind.
func NewKind(kind Kind, msg string, args ...interface{}) *Error {
	return &Error{
		msg:   fmt.Sprintf(msg, args...),
		kind:  kind,
		stack: debug.Stack(),
	}
}

// Wrap wraps an error with a new message. If err is itself an *Error, no
// new stack trace is captured since one is already attached to the chain.
func Wrap(err error, msg string, args ...interface{}) *Error {
	if e, ok := err.(*Error); ok {
		return &Error{
			msg:     fmt.Sprintf(msg, args...),
			wrapped: e,
		}
	}

	return &Error{
		msg:     fmt.Sprintf(msg, args...),
		wrapped: err,
		stack:   debug.Stack(),
	}
}

// WrapKind wraps an error with a new message and classifies the result.
func WrapKind(kind Kind, err error, msg string, args ...interface{}) *Error {
	e := Wrap(err, msg, args...)
	e.kind = kind
	return e
}

// Error gets the error output
func (e *Error) Error() string {
	return e.error(0)
}

// Kind returns the classification attached to this error, walking
// wrapped errors if this one is unclassified.
func (e *Error) Kind() Kind {
	if e.kind != KindUnknown {
		return e.kind
	}
	if inner, ok := e.wrapped.(*Error); ok {
		return inner.Kind()
	}
	return KindUnknown
}

// Is reports whether err is an *Error whose Kind() is the given Kind:
// its own kind or, when it has none, that of the nearest classified
// *Error it wraps. An error that is not an *Error never matches.
func Is(err error, kind Kind) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	return e.Kind() == kind
}

// Inner returns the inner error wrapped by this error
func (e *Error) Inner() error {
	return e.wrapped
}

// InnerMost returns the innermost error wrapped by this error
func (e *Error) InnerMost() error {
	if e.wrapped == nil {
		return e
	}

	if inner, ok := e.wrapped.(*Error); ok {
		return inner.InnerMost()
	}

	return e.wrapped
}

// Unwrap supports errors.Unwrap/errors.Is/errors.As against the standard
// library's error chains.
func (e *Error) Unwrap() error {
	return e.wrapped
}

func (e *Error) error(level int) string {
	prefix := ""
	if e.kind != KindUnknown {
		prefix = "[" + e.kind.String() + "] "
	}
	msg := fmt.Sprintf("%s%s%s", strings.Repeat("\t", level), prefix, e.msg)
	if e.wrapped != nil {
		if wrappedErr, ok := e.wrapped.(*Error); ok {
			msg += fmt.Sprintf("\n%s", wrappedErr.error(level+1))
		} else {
			msg += fmt.Sprintf("\nInternal Error(%T):%s", e.wrapped, e.wrapped.Error())
		}
	}

	if len(e.stack) > 0 {
		msg += fmt.Sprintf("\n\n Stack Trace:\n\n%s", e.stack)
	}

	return msg
}

// Protocol, Authentication, Security, Client, Transient, SessionExpired
// and ServiceUnavailable are convenience constructors for the taxonomy's
// named kinds.

func Protocol(msg string, args ...interface{}) *Error {
	return NewKind(KindProtocol, msg, args...)
}

func Authentication(msg string, args ...interface{}) *Error {
	return NewKind(KindAuthentication, msg, args...)
}

func Security(msg string, args ...interface{}) *Error {
	return NewKind(KindSecurity, msg, args...)
}

func Client(msg string, args ...interface{}) *Error {
	return NewKind(KindClient, msg, args...)
}

func Transient(msg string, args ...interface{}) *Error {
	return NewKind(KindTransient, msg, args...)
}

func SessionExpired(msg string, args ...interface{}) *Error {
	return NewKind(KindSessionExpired, msg, args...)
}

func ServiceUnavailable(msg string, args ...interface{}) *Error {
	return NewKind(KindServiceUnavailable, msg, args...)
}
