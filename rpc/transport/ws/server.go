package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/gorilla/websocket"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// Path is the http path the websocket endpoint is served on
const Path = "/ws"

// listener implements transport.IListener. Every upgraded http request is
// handed to Accept through a channel.
type listener struct {
	server   *http.Server
	ln       net.Listener
	upgrader websocket.Upgrader
	maxFrame int

	conns     chan *wsConn
	done      chan struct{}
	closeOnce sync.Once
}

// NewListener serves the websocket endpoint on config.Endpoint
func NewListener(config common.TransportConfig) (transport.IListener, error) {
	ln, err := net.Listen("tcp", config.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket listener: %v", err)
	}

	l := &listener{
		ln: ln,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.SocketConf.ReadBufferSize,
			WriteBufferSize: config.SocketConf.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		maxFrame: config.MaxFrameSize,
		conns:    make(chan *wsConn),
		done:     make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(Path, l.handle)
	l.server = &http.Server{Handler: mux}

	go func() {
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("Websocket server on %s stopped: %v", ln.Addr(), err)
		}
	}()

	Logger.Infof("Listening on %s%s using ws transport", ln.Addr(), Path)
	return l, nil
}

// handle upgrades a request and waits until Accept takes the connection
func (l *listener) handle(rw http.ResponseWriter, r *http.Request) {
	conn, err := l.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		Logger.Debugf("Websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	select {
	case l.conns <- newConn(conn, l.maxFrame):
	case <-l.done:
		_ = conn.Close()
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IListener)
// --------------------------------------------------------------------------

func (l *listener) Accept(ctx context.Context) (transport.IConnection, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, transport.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = l.server.Close()
	})
	return err
}

func (l *listener) Addr() string {
	return l.ln.Addr().String()
}
