package base

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dSync/rpc/transport"
)

// expired is a deadline in the past, used to interrupt blocked I/O
var expired = time.Unix(1, 0)

// frameConn implements transport.IConnection on top of a stream oriented
// net.Conn using length prefixed frames
type frameConn struct {
	conn     net.Conn
	reader   *bufio.Reader
	header   [headerSize]byte
	maxFrame int

	readMu  sync.Mutex
	writeMu sync.Mutex
	closed  atomic.Bool
}

// NewConnection wraps a stream connection. readBufferSize sizes the read
// buffer (0 = bufio default), maxFrame limits incoming and outgoing frames
// (0 = DefaultMaxFrameSize).
func NewConnection(conn net.Conn, readBufferSize, maxFrame int) transport.IConnection {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrameSize
	}
	var reader *bufio.Reader
	if readBufferSize > 0 {
		reader = bufio.NewReaderSize(conn, readBufferSize)
	} else {
		reader = bufio.NewReader(conn)
	}
	return &frameConn{
		conn:     conn,
		reader:   reader,
		maxFrame: maxFrame,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConnection)
// --------------------------------------------------------------------------

func (c *frameConn) Send(ctx context.Context, msg []byte) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}
	if len(msg) > c.maxFrame {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrFrameTooLarge, len(msg), c.maxFrame)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetWriteDeadline(expired)
	})
	err := writeFrame(c.conn, msg)
	if !stop() {
		_ = c.conn.SetWriteDeadline(time.Time{})
		if err != nil {
			_ = c.Close()
			return ctx.Err()
		}
	}
	return c.wrap(err)
}

func (c *frameConn) Receive(ctx context.Context) ([]byte, error) {
	if c.closed.Load() {
		return nil, transport.ErrClosed
	}

	c.readMu.Lock()
	defer c.readMu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		_ = c.conn.SetReadDeadline(expired)
	})
	data, err := readFrame(c.reader, c.header[:], c.maxFrame)
	if !stop() {
		_ = c.conn.SetReadDeadline(time.Time{})
		if err != nil {
			_ = c.Close()
			return nil, ctx.Err()
		}
	}
	if errors.Is(err, ErrFrameTooLarge) {
		// the stream cannot be resynchronized
		_ = c.Close()
		return nil, err
	}
	return data, c.wrap(err)
}

func (c *frameConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	return c.conn.Close()
}

func (c *frameConn) RemoteAddr() string {
	if addr := c.conn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return c.conn.LocalAddr().String()
}

// wrap maps errors caused by a closed connection to transport.ErrClosed
func (c *frameConn) wrap(err error) error {
	if err == nil {
		return nil
	}
	if c.closed.Load() || errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}
	return err
}
