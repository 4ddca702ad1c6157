// Package cmd implements the command-line interface of dSync. It provides a
// server that hosts remote methods and publishes objects, and clients that
// call those methods or mirror the published objects.
//
// The package is organized into several subpackages:
//
//   - serve: Starts a server with the demo methods and a published demo board
//   - call: Invokes the demo methods remotely (or locally with --local) and benchmarks them
//   - watch: Mirrors the published objects and prints every change
//   - codec: Converts objects between the text and the binary format
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dsync -help for a list of all commands.
package cmd
