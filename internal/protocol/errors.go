package protocol

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind categorizes failures of a chat session.
type ErrorKind int

const (
	// KindUnknown is reported for errors that did not come from this package.
	KindUnknown ErrorKind = iota
	// KindConnect indicates the transport could not be established.
	KindConnect
	// KindConnectionLost indicates the peer closed or reset the connection mid-exchange.
	KindConnectionLost
	// KindDecode indicates non-text bytes or a malformed structured reply.
	KindDecode
	// KindRegistration indicates the registration reply was unusable.
	KindRegistration
	// KindReauthorize indicates a freshly minted token was rejected.
	KindReauthorize
	// KindCanceled indicates the caller aborted the session.
	KindCanceled
)

// String returns the string representation of ErrorKind
func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindConnectionLost:
		return "connection lost"
	case KindDecode:
		return "decode"
	case KindRegistration:
		return "registration"
	case KindReauthorize:
		return "reauthorize"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the error type returned by transports and sessions.
type Error struct {
	Kind ErrorKind
	Op   string // the step that failed, e.g. "read greeting"
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error of the given kind.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf reports the ErrorKind carried by err.
// Context cancellation and deadline errors are reported as KindCanceled
// even when they were not wrapped by this package.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

// WithOp relabels an *Error with the step that was running when it occurred.
// Other errors are returned unchanged.
func WithOp(err error, op string) error {
	var pe *Error
	if errors.As(err, &pe) {
		return &Error{Kind: pe.Kind, Op: op, Err: pe.Err}
	}
	return err
}

// Reclassify returns err with its kind replaced, keeping the original as cause.
// Errors that are already KindCanceled are returned unchanged.
func Reclassify(err error, kind ErrorKind, op string) error {
	if err == nil || KindOf(err) == KindCanceled {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}
