package transport

import (
	"errors"
	"fmt"

	"github.com/epoxyrpc/epoxy/pkg/message"
)

// Kind classifies a transport-level error by its taxonomy, independent of
// the underlying cause.
type Kind string

// Error kinds, per the transport's error taxonomy.
const (
	// KindInvalidArgument covers API misuse: a bad address, a nil handler,
	// a malformed framelet construction.
	KindInvalidArgument Kind = "InvalidArgument"

	// KindInvalidOperation covers lifecycle misuse: a second log handler, an
	// empty-frame write, registering the same method twice.
	KindInvalidOperation Kind = "InvalidOperation"

	// KindProtocolError covers malformed frames, unknown framelets, EOF
	// mid-frame, or a rejected handshake.
	KindProtocolError Kind = "ProtocolError"

	// KindTransportError covers socket I/O failures.
	KindTransportError Kind = "TransportError"

	// KindApplicationError covers a handler returning an Error; this is
	// delivered as a response, never a connection failure.
	KindApplicationError Kind = "ApplicationError"
)

// Error is a kind-tagged transport failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newErrorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// ErrConnectionShutDown is returned synchronously by calls made against a
// connection that has already entered a terminal state.
var ErrConnectionShutDown = errors.New("transport: connection is shut down")

// RejectedError carries the exact code/message a peer's Connected handler
// populated when it refused a connection during the handshake (spec S6).
type RejectedError struct {
	Detail message.Error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("connection rejected: %s (%s)", e.Detail.Message, e.Detail.Code)
}
