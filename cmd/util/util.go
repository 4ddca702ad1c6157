package util

import (
	"context"
	"fmt"
	"strings"

	"github.com/ValentinKolb/dSync/lib/codec/structured"
	"github.com/ValentinKolb/dSync/lib/demo"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/session"
	"github.com/ValentinKolb/dSync/rpc/transport"
	"github.com/ValentinKolb/dSync/rpc/transport/tcp"
	"github.com/ValentinKolb/dSync/rpc/transport/unix"
	"github.com/ValentinKolb/dSync/rpc/transport/ws"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Flags and Configuration
// --------------------------------------------------------------------------

// SetupTransportFlags adds the socket flags shared by servers and clients
func SetupTransportFlags(cmd *cobra.Command, endpoint string) {
	key := "endpoint"
	cmd.PersistentFlags().String(key, endpoint, WrapString("The address to listen on or to dial (e.g. localhost:7070, /tmp/dsync.sock, ws://localhost:7070/ws)"))

	key = "transport-max-frame"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum size of a single frame in KB (0 = transport default)"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket write buffer (in KB, ignored for ws)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 512, WrapString("The size of the socket read buffer (in KB, ignored for ws)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, 0, WrapString("The linger time (in seconds, only for tcp)"))
}

// SetupRPCClientFlags adds the connection flags of client commands
func SetupRPCClientFlags(cmd *cobra.Command) {
	SetupTransportFlags(cmd, "localhost:7070")

	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of a single call"))

	key = "transport-retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to retry dialing the server"))

	key = "props"
	cmd.PersistentFlags().String(key, "", WrapString("Comma-separated key=value properties sent to the server in the handshake"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dsync")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetTransportConfig reads the transport configuration from viper
func GetTransportConfig() common.TransportConfig {
	return common.TransportConfig{
		Kind:         viper.GetString("transport"),
		Endpoint:     viper.GetString("endpoint"),
		MaxFrameSize: viper.GetInt("transport-max-frame") * 1024,
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
			TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
		},
	}
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() (*common.ClientConfig, error) {
	props, err := ParseProps(viper.GetString("props"))
	if err != nil {
		return nil, err
	}
	return &common.ClientConfig{
		Transport:     GetTransportConfig(),
		Serializer:    viper.GetString("serializer"),
		TimeoutSecond: viper.GetInt("timeout"),
		RetryCount:    viper.GetInt("transport-retries"),
		Properties:    props,
	}, nil
}

// ParseProps parses a comma-separated list of key=value pairs
func ParseProps(s string) (map[string]string, error) {
	props := map[string]string{}
	if strings.TrimSpace(s) == "" {
		return props, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid property %q (expected key=value)", pair)
		}
		props[k] = strings.TrimSpace(v)
	}
	return props, nil
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.IRPCSerializer, error) {
	return serializer.New(viper.GetString("serializer"))
}

// --------------------------------------------------------------------------
// Transport Factories
// --------------------------------------------------------------------------

// NewListener creates the listener selected by config.Kind
func NewListener(config common.TransportConfig) (transport.IListener, error) {
	switch config.Kind {
	case "tcp":
		return tcp.NewListener(config)
	case "unix":
		return unix.NewListener(config)
	case "ws":
		return ws.NewListener(config)
	default:
		return nil, fmt.Errorf("invalid transport %s", config.Kind)
	}
}

// NewDialer creates the dialer selected by config.Kind
func NewDialer(config common.TransportConfig, retryCount int) (transport.IDialer, error) {
	switch config.Kind {
	case "tcp":
		return tcp.NewDialer(config, retryCount), nil
	case "unix":
		return unix.NewDialer(config, retryCount), nil
	case "ws":
		return ws.NewDialer(config), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", config.Kind)
	}
}

// Connect dials the configured server and opens a session. The connection is
// closed if the handshake fails.
func Connect(ctx context.Context, config *common.ClientConfig, opts session.Options) (*session.Session, error) {
	ser, err := serializer.New(config.Serializer)
	if err != nil {
		return nil, err
	}
	dialer, err := NewDialer(config.Transport, config.RetryCount)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, config.Timeout())
	defer cancel()
	conn, err := dialer.Dial(dialCtx, config.Transport.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Transport.Endpoint, err)
	}

	if opts.Props == nil {
		opts.Props = config.Properties
	}
	return session.Open(ctx, conn, ser, opts)
}

// DemoCodec returns a structured codec over the demo types
func DemoCodec() (*structured.Codec, error) {
	reg, err := demo.NewRegistry()
	if err != nil {
		return nil, err
	}
	return structured.NewCodec(reg), nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}
