// ABOUTME: Error taxonomy shared by the transport, API, and conversation layers.
// ABOUTME: Sentinel errors for caller mistakes, typed errors for server failures.

package chat

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput rejects an empty or whitespace-only message before any
	// network activity happens.
	ErrInvalidInput = errors.New("message text is empty")

	// ErrNotConnected is returned by the push channel when a send is attempted
	// while the connection is not open.
	ErrNotConnected = errors.New("push channel is not connected")
)

// TransportError wraps a connection-level failure on the push channel.
// It triggers the reconnect policy; it is surfaced as an event, never
// returned from a caller-invoked operation.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError marks a single malformed inbound frame. The frame is dropped;
// the connection stays open.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed frame: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ApplicationError is a server-reported error delivered over the push channel
// as an error-only frame. The connection stays open.
type ApplicationError struct {
	Message string
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// RequestError is a failed request/response call. It is returned to the
// caller as a typed failure and never retried automatically.
type RequestError struct {
	Status int
	Detail string
}

func (e *RequestError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("request failed (%d): %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("request failed (%d)", e.Status)
}
