// Package transport defines the contracts the session layer needs from a
// networking collaborator. It provides a common contract that all transport
// implementations must fulfill, enabling protocol-agnostic communication.
//
// The package focuses on:
//   - Message oriented connections (send / receive whole messages)
//   - Listening for and dialing peers
//   - Multiple implementations (in memory, TCP, Unix sockets, WebSocket)
//
// Key Components:
//
//   - IConnection: a bidirectional connection to one peer.
//
//   - IListener: accepts connections on the server side.
//
//   - IDialer: opens connections on the client side.
//
// Implementations live in the sub packages memory, tcp, unix and ws. The
// stream based ones (tcp, unix) share the length prefixed framing of the
// base package.
package transport
