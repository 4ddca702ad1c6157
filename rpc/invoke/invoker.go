package invoke

import (
	"context"
	"sync"
	"time"

	"github.com/ValentinKolb/dSync/lib/schema"
)

// PeerContext is the connection to the process that executes remote calls.
// It is implemented by session.Session.
type PeerContext interface {
	// Call sends a call and blocks until the result payload arrives, the
	// context is done or the connection is lost.
	Call(ctx context.Context, method string, args [][]byte) ([]byte, error)

	// Notify sends a call without waiting for an answer.
	Notify(ctx context.Context, method string, args [][]byte) error
}

// Invoker decides per call where a method runs: on this process while no
// peer is attached, on the peer otherwise. Local and remote calls have the
// same shape, so callers do not need to know which path is taken.
type Invoker struct {
	d *Dispatcher

	mu   sync.RWMutex
	peer PeerContext
}

// NewInvoker creates an invoker for the methods of d.
func NewInvoker(d *Dispatcher) *Invoker {
	return &Invoker{d: d}
}

// Dispatcher returns the dispatcher holding the method signatures.
func (i *Invoker) Dispatcher() *Dispatcher { return i.d }

// Attach routes all further calls to p.
func (i *Invoker) Attach(p PeerContext) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.peer = p
}

// Detach routes all further calls to the local implementation.
func (i *Invoker) Detach() {
	i.Attach(nil)
}

// Peer returns the attached peer context or nil.
func (i *Invoker) Peer() PeerContext {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.peer
}

// Call invokes method with args and returns the result in canonical form.
//
// On the remote path the arguments are encoded in parameter order and the
// caller waits for the result. A method without result returns as soon as
// the notification is handed to the peer.
func (i *Invoker) Call(ctx context.Context, method string, args ...any) (any, error) {
	p := i.Peer()
	if p == nil {
		return i.d.Invoke(ctx, method, args...)
	}

	m, ok := i.d.Lookup(method)
	if !ok {
		return nil, &UnknownMethodError{Method: method}
	}
	raw, err := i.d.EncodeArgs(m, args)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if !m.HasResult() {
		err = p.Notify(ctx, method, raw)
		observe(PathRemote, method, start, err)
		return nil, err
	}

	payload, err := p.Call(ctx, method, raw)
	observe(PathRemote, method, start, err)
	if err != nil {
		return nil, err
	}
	return i.d.codec.UnmarshalValue(m.Result, payload)
}

// Call invokes method through inv and converts the result to T.
//
// Usage:
//
//	sum, err := invoke.Call[int32](ctx, inv, "add", 1, 2)
func Call[T any](ctx context.Context, inv *Invoker, method string, args ...any) (T, error) {
	res, err := inv.Call(ctx, method, args...)
	if err != nil {
		var zero T
		return zero, err
	}
	return schema.Coerce[T](res)
}
