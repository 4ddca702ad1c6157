// Package memory implements the transport contracts with channels. It is
// used by tests and by applications that run several peers in one process.
//
// Pipe returns a connected pair, Network provides named listeners and a
// dialer. Messages are copied on send, so the sender may reuse its buffer.
package memory
