package transport

import (
	"context"
	"errors"
)

// ErrClosed is returned (possibly wrapped) by every operation on a closed
// connection or listener
var ErrClosed = errors.New("transport: closed")

// --------------------------------------------------------------------------
// Connection
// --------------------------------------------------------------------------

// IConnection is a message oriented, bidirectional connection to one peer.
// Messages are delivered in order and never split or merged.
//
// Send and Receive may be called concurrently with each other, but each of
// them must only be called by one goroutine at a time. Cancelling the context
// of a blocked Send or Receive closes the connection, since a partially
// transferred message cannot be resumed.
type IConnection interface {
	// Send transmits one message
	Send(ctx context.Context, msg []byte) error
	// Receive blocks until the next message arrives. The returned slice is
	// owned by the caller.
	Receive(ctx context.Context) ([]byte, error)
	// Close closes the connection. Blocked calls return ErrClosed.
	Close() error
	// RemoteAddr describes the other end of the connection
	RemoteAddr() string
}

// --------------------------------------------------------------------------
// Server / Client side
// --------------------------------------------------------------------------

// IListener accepts connections from peers
type IListener interface {
	// Accept blocks until a peer connects
	Accept(ctx context.Context) (IConnection, error)
	// Close stops listening. Blocked calls to Accept return ErrClosed.
	Close() error
	// Addr returns the address the listener is bound to
	Addr() string
}

// IDialer opens connections to listeners
type IDialer interface {
	// Dial connects to the listener at endpoint
	Dial(ctx context.Context, endpoint string) (IConnection, error)
}
