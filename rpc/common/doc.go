// Package common provides the data structures shared by the rpc packages.
//
// Key Components:
//
//   - Envelope: The single unit exchanged between two peers. Its type decides
//     which fields are used (hello, call, notify, result, error, snapshot,
//     update, remove). Factory functions create each kind.
//
//   - ErrorCode: Classifies failed calls so that the caller can rebuild a
//     typed error from an error envelope.
//
//   - ServerConfig / ClientConfig: Configuration of the serve command and of
//     the client commands, including the transport settings.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logger package while providing consistent formatting across the application.
package common
