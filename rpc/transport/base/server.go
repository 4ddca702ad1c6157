package base

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.TransportConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// deadliner is implemented by the tcp and unix listeners of the net package
type deadliner interface {
	SetDeadline(t time.Time) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverListener implements transport.IListener for stream sockets
type serverListener struct {
	connector IServerConnector
	config    common.TransportConfig
	listener  net.Listener
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewListener creates a listener using the connector
func NewListener(connector IServerConnector, config common.TransportConfig) (transport.IListener, error) {
	listener, err := connector.Listen(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %v", err)
	}

	Logger.Infof("Listening on %s using %s transport", listener.Addr(), connector.GetName())

	return &serverListener{
		connector: connector,
		config:    config,
		listener:  listener,
	}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IListener)
// --------------------------------------------------------------------------

func (l *serverListener) Accept(ctx context.Context) (transport.IConnection, error) {
	d, canInterrupt := l.listener.(deadliner)
	if canInterrupt {
		stop := context.AfterFunc(ctx, func() {
			_ = d.SetDeadline(expired)
		})
		defer func() {
			if !stop() {
				_ = d.SetDeadline(time.Time{})
			}
		}()
	}

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, fmt.Errorf("%w: %v", transport.ErrClosed, err)
			}
			return nil, err
		}

		// Apply transport specific settings, a failing connection is dropped
		if err := l.connector.UpgradeConnection(conn, l.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		Logger.Debugf("Accepted %s connection from %s", l.connector.GetName(), conn.RemoteAddr())
		return NewConnection(conn, l.config.SocketConf.ReadBufferSize, l.config.MaxFrameSize), nil
	}
}

func (l *serverListener) Close() error {
	return l.listener.Close()
}

func (l *serverListener) Addr() string {
	return l.listener.Addr().String()
}
