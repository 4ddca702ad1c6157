package memory

import (
	"bytes"
	"context"
	"sync"

	"github.com/ValentinKolb/dSync/rpc/transport"
)

// queueSize is the number of messages buffered per direction
const queueSize = 64

// pipe is shared by both ends of a connection
type pipe struct {
	done      chan struct{}
	closeOnce sync.Once
}

func (p *pipe) close() {
	p.closeOnce.Do(func() { close(p.done) })
}

// conn is one end of an in memory connection
type conn struct {
	pipe *pipe
	in   <-chan []byte
	out  chan<- []byte
	name string
}

// Pipe returns both ends of an in memory connection. Closing either end
// closes the connection.
func Pipe() (transport.IConnection, transport.IConnection) {
	return newPipe("pipe:b", "pipe:a")
}

// newPipe connects two ends, remoteA is the address end a reports for its peer
func newPipe(remoteA, remoteB string) (*conn, *conn) {
	p := &pipe{done: make(chan struct{})}
	ab := make(chan []byte, queueSize)
	ba := make(chan []byte, queueSize)
	a := &conn{pipe: p, in: ba, out: ab, name: remoteA}
	b := &conn{pipe: p, in: ab, out: ba, name: remoteB}
	return a, b
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConnection)
// --------------------------------------------------------------------------

func (c *conn) Send(ctx context.Context, msg []byte) error {
	select {
	case <-c.pipe.done:
		return transport.ErrClosed
	default:
	}

	select {
	case c.out <- bytes.Clone(msg):
		return nil
	case <-c.pipe.done:
		return transport.ErrClosed
	case <-ctx.Done():
		c.pipe.close()
		return ctx.Err()
	}
}

func (c *conn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-c.in:
		return msg, nil
	case <-c.pipe.done:
		// deliver what was sent before the close
		select {
		case msg := <-c.in:
			return msg, nil
		default:
			return nil, transport.ErrClosed
		}
	case <-ctx.Done():
		c.pipe.close()
		return nil, ctx.Err()
	}
}

func (c *conn) Close() error {
	c.pipe.close()
	return nil
}

func (c *conn) RemoteAddr() string {
	return c.name
}
