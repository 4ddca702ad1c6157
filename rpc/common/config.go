package common

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Transport configuration
// --------------------------------------------------------------------------

// SocketConf holds the buffer sizes of a stream socket (in bytes)
type SocketConf struct {
	WriteBufferSize int
	ReadBufferSize  int
}

// TCPConf holds options that only apply to TCP connections
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int
	TCPLingerSec    int
}

// TransportConfig selects and configures the transport of a peer
type TransportConfig struct {
	// Kind is one of tcp, unix, ws
	Kind string

	// Endpoint is the address to listen on (server) or to dial (client)
	Endpoint string

	// MaxFrameSize limits the size of a single frame (0 = default)
	MaxFrameSize int

	SocketConf SocketConf
	TCPConf    TCPConf
}

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a dSync server
type ServerConfig struct {
	Transport TransportConfig

	// Serializer is one of binary, json, gob
	Serializer string

	// MetricsEndpoint is the address of the /metrics http endpoint (empty = disabled)
	MetricsEndpoint string

	// TickMillis is the interval of the delta sync tick
	TickMillis int

	// TimeoutSecond bounds the handshake with new peers
	TimeoutSecond int

	// Logging configuration
	LogLevel string
}

// Tick returns the sync tick interval (at least one millisecond)
func (c *ServerConfig) Tick() time.Duration {
	return time.Duration(max(1, c.TickMillis)) * time.Millisecond
}

// Timeout returns the handshake timeout
func (c *ServerConfig) Timeout() time.Duration {
	return time.Duration(max(1, c.TimeoutSecond)) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Server")
	addField("Serializer", c.Serializer)
	addField("Sync Tick", fmt.Sprintf("%d ms", c.TickMillis))
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	if c.MetricsEndpoint != "" {
		addField("Metrics", c.MetricsEndpoint)
	} else {
		addField("Metrics", "disabled")
	}

	c.Transport.write(addSection, addField)

	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// Client configuration struct
// --------------------------------------------------------------------------

// ClientConfig holds all configuration parameters of a dSync client
type ClientConfig struct {
	Transport TransportConfig

	// Serializer is one of binary, json, gob
	Serializer string

	// TimeoutSecond bounds every remote call
	TimeoutSecond int

	// RetryCount is the number of additional dial attempts
	RetryCount int

	// Properties are sent to the server in the hello envelope
	Properties map[string]string
}

// Timeout returns the call timeout
func (c *ClientConfig) Timeout() time.Duration {
	return time.Duration(max(1, c.TimeoutSecond)) * time.Second
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	addSection("Client Configuration")
	addField("Serializer", c.Serializer)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Retry Count", strconv.Itoa(c.RetryCount))

	c.Transport.write(addSection, addField)

	if len(c.Properties) > 0 {
		addSection("Properties")
		keys := make([]string, 0, len(c.Properties))
		for k := range c.Properties {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			addField(k, c.Properties[k])
		}
	}

	return sb.String()
}

// write renders the transport section with the helpers of the caller
func (c *TransportConfig) write(addSection func(string), addField func(string, string)) {
	addSection("Transport")
	addField("Kind", c.Kind)
	addField("Endpoint", c.Endpoint)
	if c.MaxFrameSize > 0 {
		addField("Max Frame Size", fmt.Sprintf("%d KB", c.MaxFrameSize/1024))
	}
	if c.Kind == "ws" {
		return
	}
	addField("Write Buffer", fmt.Sprintf("%d KB", c.SocketConf.WriteBufferSize/1024))
	addField("Read Buffer", fmt.Sprintf("%d KB", c.SocketConf.ReadBufferSize/1024))
	if c.Kind == "tcp" {
		addField("TCP No Delay", strconv.FormatBool(c.TCPConf.TCPNoDelay))
		addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.TCPConf.TCPKeepAliveSec))
		addField("TCP Linger", fmt.Sprintf("%d sec", c.TCPConf.TCPLingerSec))
	}
}
