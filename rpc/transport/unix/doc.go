// Package unix implements the Unix domain socket transport for peers running
// on the same machine. The listener removes a stale socket file before
// binding.
//
// Performance Characteristics:
//
//   - Reduced overhead: Eliminates TCP/IP stack processing for better performance
//   - Lower latency: Direct kernel-mediated IPC avoids network subsystem overhead
package unix
