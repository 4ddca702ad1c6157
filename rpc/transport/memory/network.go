package memory

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

// Network is an in memory address space. Listeners bind to names, dialers
// connect to them. A Network implements transport.IDialer.
type Network struct {
	listeners *xsync.MapOf[string, *listener]
	nextConn  atomic.Uint64
}

// NewNetwork creates an empty network
func NewNetwork() *Network {
	return &Network{listeners: xsync.NewMapOf[string, *listener]()}
}

// Listen binds a listener to name
func (n *Network) Listen(name string) (transport.IListener, error) {
	l := &listener{
		network: n,
		name:    name,
		conns:   make(chan *conn),
		done:    make(chan struct{}),
	}
	if _, loaded := n.listeners.LoadOrStore(name, l); loaded {
		return nil, fmt.Errorf("memory: address %q already in use", name)
	}
	return l, nil
}

// Dial connects to the listener bound to endpoint
func (n *Network) Dial(ctx context.Context, endpoint string) (transport.IConnection, error) {
	l, ok := n.listeners.Load(endpoint)
	if !ok {
		return nil, fmt.Errorf("memory: connection refused: no listener on %q", endpoint)
	}

	id := n.nextConn.Add(1)
	client, server := newPipe(fmt.Sprintf("%s#%d", endpoint, id), fmt.Sprintf("client#%d", id))

	select {
	case l.conns <- server:
		return client, nil
	case <-l.done:
		return nil, fmt.Errorf("memory: connection refused: %w", transport.ErrClosed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// listener implements transport.IListener
type listener struct {
	network   *Network
	name      string
	conns     chan *conn
	done      chan struct{}
	closeOnce sync.Once
}

func (l *listener) Accept(ctx context.Context) (transport.IConnection, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *listener) Close() error {
	l.closeOnce.Do(func() {
		close(l.done)
		l.network.listeners.Delete(l.name)
	})
	return nil
}

func (l *listener) Addr() string {
	return l.name
}
