package unix

import (
	"context"
	"fmt"
	"net"
	"os"

	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/base"
)

// connector implements the IServerConnector and IClientConnector interfaces
// for Unix sockets
type connector struct{}

// --------------------------------------------------------------------------
// Interface Methods (docu see base.IServerConnector, base.IClientConnector)
// --------------------------------------------------------------------------

func (c *connector) GetName() string {
	return "unix"
}

func (c *connector) Listen(config common.TransportConfig) (net.Listener, error) {
	socketPath := config.Endpoint

	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %v", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create Unix socket: %v", err)
	}
	return listener, nil
}

func (c *connector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", endpoint)
}

// UpgradeConnection sets the socket buffer sizes if configured
func (c *connector) UpgradeConnection(conn net.Conn, config common.TransportConfig) error {
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return nil
	}
	if config.SocketConf.WriteBufferSize > 0 {
		if err := unixConn.SetWriteBuffer(config.SocketConf.WriteBufferSize); err != nil {
			return err
		}
	}
	if config.SocketConf.ReadBufferSize > 0 {
		if err := unixConn.SetReadBuffer(config.SocketConf.ReadBufferSize); err != nil {
			return err
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Factory Methods
// --------------------------------------------------------------------------

// NewListener listens on the socket file config.Endpoint
func NewListener(config common.TransportConfig) (transport.IListener, error) {
	return base.NewListener(&connector{}, config)
}

// NewDialer creates a Unix socket dialer retrying failed dials retryCount times
func NewDialer(config common.TransportConfig, retryCount int) transport.IDialer {
	return base.NewDialer(&connector{}, config, retryCount)
}
