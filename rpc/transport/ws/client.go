package ws

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/gorilla/websocket"
)

// dialer implements transport.IDialer for websockets
type dialer struct {
	dialer   websocket.Dialer
	maxFrame int
}

// NewDialer creates a websocket dialer
func NewDialer(config common.TransportConfig) transport.IDialer {
	return &dialer{
		dialer: websocket.Dialer{
			ReadBufferSize:  config.SocketConf.ReadBufferSize,
			WriteBufferSize: config.SocketConf.WriteBufferSize,
		},
		maxFrame: config.MaxFrameSize,
	}
}

// Dial connects to endpoint, which is either a full ws:// url or a host:port
// pair served under Path
func (d *dialer) Dial(ctx context.Context, endpoint string) (transport.IConnection, error) {
	url := endpoint
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		url = "ws://" + endpoint + Path
	}

	conn, resp, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("failed to connect to %s (status %s): %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	Logger.Infof("Connected to %s using ws transport", url)
	return newConn(conn, d.maxFrame), nil
}
