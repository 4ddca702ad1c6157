// Package base provides a foundation for the stream socket transports (TCP,
// Unix sockets). It implements the transport contracts independent of the
// specific network protocol and can be extended with protocol-specific
// connectors.
//
// The package focuses on:
//   - Protocol-agnostic listener and dialer implementations
//   - Frame-based message protocol (4 byte length prefix, big endian)
//   - Robust dialing with retries and exponential backoff
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - NewConnection: wraps a net.Conn into a transport.IConnection. Frames are
//     written with net.Buffers, combining header and payload into a single write.
//
//   - NewListener / NewDialer: accept and open connections using a connector.
//
// Thread Safety:
//
//	Send and Receive of a connection are guarded by separate mutexes, so one
//	reader and one writer can work concurrently.
package base
