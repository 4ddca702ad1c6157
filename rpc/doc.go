// Package rpc provides the remote layer of dSync: remote method invocation
// and delta sync of tracked object graphs between processes.
//
// The package is organized into several subpackages:
//
//   - common: The Envelope protocol, configuration structures and logging.
//
//   - serializer: Envelope serialization with multiple format options (Binary, JSON, GOB).
//
//   - transport: Message oriented connections with pluggable implementations
//     (in-memory, TCP, Unix sockets, WebSocket).
//
//   - invoke: Method signatures, the dispatcher executing them and the invoker
//     choosing between local and remote execution per call.
//
//   - session: The peer context of one connection (handshake, call correlation,
//     ordered delivery of sync envelopes) and the hub of all connected peers.
//
//   - mirror: Publisher and replica of the delta sync.
package rpc
