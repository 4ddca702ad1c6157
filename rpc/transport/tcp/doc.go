// Package tcp implements the TCP socket transport. It provides a connector
// for the base package that applies the TCP specific socket options of
// common.TCPConf (no delay, keep alive, linger) and the buffer sizes of
// common.SocketConf to every connection.
//
// See the base package documentation for the framing and the dial retry
// behaviour.
package tcp
