package base

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"

	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var Logger = logger.GetLogger("transport")

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IClientConnector defines the interface for transport-specific connection operations
type IClientConnector interface {
	// Connect establishes a single connection to endpoint
	Connect(ctx context.Context, endpoint string) (net.Conn, error)

	// GetName returns the name of the transport type (e.g., "unix", "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an established connection
	UpgradeConnection(conn net.Conn, config common.TransportConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// clientDialer implements transport.IDialer for stream sockets
type clientDialer struct {
	connector  IClientConnector
	config     common.TransportConfig
	retryCount int
}

// -----------------------------------------------------------
// Transport Factory Method (used for tcp, unix, etc.)
// -----------------------------------------------------------

// NewDialer creates a dialer using the connector. A failed dial is retried
// retryCount times with exponential backoff.
func NewDialer(connector IClientConnector, config common.TransportConfig, retryCount int) transport.IDialer {
	return &clientDialer{
		connector:  connector,
		config:     config,
		retryCount: retryCount,
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IDialer)
// --------------------------------------------------------------------------

func (d *clientDialer) Dial(ctx context.Context, endpoint string) (transport.IConnection, error) {
	var lastErr error

	// We always try at least once
	attempts := max(1, d.retryCount+1)

	// Initial backoff duration in milliseconds
	backoffMs := 50

	for i := 0; i < attempts; i++ {
		conn, err := d.connect(ctx, endpoint)
		if err == nil {
			Logger.Infof("Connected to %s using %s transport", endpoint, d.connector.GetName())
			return NewConnection(conn, d.config.SocketConf.ReadBufferSize, d.config.MaxFrameSize), nil
		}

		lastErr = err
		Logger.Debugf("Dial attempt %d/%d failed: %v", i+1, attempts, err)

		if i+1 < attempts {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			select {
			case <-time.After(time.Duration(jitter) * time.Millisecond):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			backoffMs *= 2
		}
	}

	return nil, fmt.Errorf("failed to connect to %s after %d attempts: %w", endpoint, attempts, lastErr)
}

// connect establishes and upgrades a single connection
func (d *clientDialer) connect(ctx context.Context, endpoint string) (net.Conn, error) {
	conn, err := d.connector.Connect(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", endpoint, err)
	}

	// Upgrade the connection with protocol-specific settings
	if err := d.connector.UpgradeConnection(conn, d.config); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to upgrade connection to %s: %w", endpoint, err)
	}
	return conn, nil
}
