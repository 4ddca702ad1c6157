package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/gorilla/websocket"
)

// closeTimeout bounds the close handshake
const closeTimeout = time.Second

// wsConn implements transport.IConnection on top of a websocket connection.
// Every envelope is sent as one binary message.
type wsConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConn(conn *websocket.Conn, maxFrame int) *wsConn {
	if maxFrame > 0 {
		conn.SetReadLimit(int64(maxFrame))
	}
	return &wsConn{conn: conn}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IConnection)
// --------------------------------------------------------------------------

func (c *wsConn) Send(ctx context.Context, msg []byte) error {
	if c.closed.Load() {
		return transport.ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	stop := context.AfterFunc(ctx, func() { _ = c.conn.UnderlyingConn().Close() })
	err := c.conn.WriteMessage(websocket.BinaryMessage, msg)
	if !stop() {
		c.closed.Store(true)
		if err != nil {
			return ctx.Err()
		}
	}
	return c.wrap(err)
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	if c.closed.Load() {
		return nil, transport.ErrClosed
	}

	stop := context.AfterFunc(ctx, func() { _ = c.conn.UnderlyingConn().Close() })
	defer stop()

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				c.closed.Store(true)
				return nil, ctx.Err()
			}
			return nil, c.wrap(err)
		}
		if kind == websocket.BinaryMessage {
			return data, nil
		}
		// text messages are not part of the protocol
		Logger.Debugf("Ignoring websocket message of type %d from %s", kind, c.RemoteAddr())
	}
}

func (c *wsConn) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeTimeout))
	c.writeMu.Unlock()
	return c.conn.Close()
}

func (c *wsConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// wrap maps errors caused by a closed connection to transport.ErrClosed
func (c *wsConn) wrap(err error) error {
	if err == nil {
		return nil
	}
	var closeErr *websocket.CloseError
	if c.closed.Load() || errors.As(err, &closeErr) || errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("%w: %v", transport.ErrClosed, err)
	}
	return err
}
