package invoke

import (
	"errors"
	"fmt"

	"github.com/ValentinKolb/dSync/rpc/common"
)

// --------------------------------------------------------------------------
// Sentinel Errors (use with errors.Is)
// --------------------------------------------------------------------------

var (
	ErrUnknownMethod    = errors.New("invoke: unknown method")
	ErrArgumentMismatch = errors.New("invoke: argument mismatch")
	ErrConnectionLost   = errors.New("invoke: connection lost")
	ErrRemote           = errors.New("invoke: remote handler failed")
	ErrDuplicateMethod  = errors.New("invoke: duplicate method")
	ErrNoImplementation = errors.New("invoke: method has no local implementation")
)

// --------------------------------------------------------------------------
// Error Types (use with errors.As)
// --------------------------------------------------------------------------

// UnknownMethodError is returned when a method name is not registered.
type UnknownMethodError struct {
	Method string
}

func (e *UnknownMethodError) Error() string {
	return fmt.Sprintf("invoke: method %q is not registered", e.Method)
}

func (e *UnknownMethodError) Is(target error) bool { return target == ErrUnknownMethod }

// ArgumentMismatchError is returned when the arguments of a call do not match
// the signature of the method. Index is -1 if the arity is wrong.
type ArgumentMismatchError struct {
	Method string
	Index  int
	Reason string
	Err    error
}

func (e *ArgumentMismatchError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	if e.Index < 0 {
		return fmt.Sprintf("invoke: call of %q: %s", e.Method, msg)
	}
	return fmt.Sprintf("invoke: argument %d of %q: %s", e.Index, e.Method, msg)
}

func (e *ArgumentMismatchError) Is(target error) bool { return target == ErrArgumentMismatch }
func (e *ArgumentMismatchError) Unwrap() error        { return e.Err }

// ConnectionLostError resolves a remote call whose connection was torn down
// before the result arrived.
type ConnectionLostError struct {
	Peer   string
	Method string
	Err    error
}

func (e *ConnectionLostError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invoke: connection to peer %s lost during call of %q: %v", e.Peer, e.Method, e.Err)
	}
	return fmt.Sprintf("invoke: connection to peer %s lost during call of %q", e.Peer, e.Method)
}

func (e *ConnectionLostError) Is(target error) bool { return target == ErrConnectionLost }
func (e *ConnectionLostError) Unwrap() error        { return e.Err }

// RemoteError carries the error message a remote handler returned.
type RemoteError struct {
	Method string
	Msg    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("invoke: remote call of %q failed: %s", e.Method, e.Msg)
}

func (e *RemoteError) Is(target error) bool { return target == ErrRemote }

// --------------------------------------------------------------------------
// Envelope Mapping
// --------------------------------------------------------------------------

// CodeOf classifies err for an error envelope.
func CodeOf(err error) common.ErrorCode {
	switch {
	case err == nil:
		return common.CodeNone
	case errors.Is(err, ErrUnknownMethod), errors.Is(err, ErrNoImplementation):
		return common.CodeUnknownMethod
	case errors.Is(err, ErrArgumentMismatch):
		return common.CodeArgumentMismatch
	default:
		return common.CodeHandler
	}
}

// ErrorFromEnvelope rebuilds the typed error of an error envelope.
func ErrorFromEnvelope(env *common.Envelope) error {
	switch env.Code {
	case common.CodeUnknownMethod:
		return &UnknownMethodError{Method: env.Method}
	case common.CodeArgumentMismatch:
		return &ArgumentMismatchError{Method: env.Method, Index: -1, Reason: env.Err}
	default:
		return &RemoteError{Method: env.Method, Msg: env.Err}
	}
}
