/*
Package session implements the peer context of a connection.

A Session wraps one transport.IConnection. On open both ends send a hello
envelope carrying their peer id and properties. Afterwards a reader
goroutine routes incoming envelopes:

  - Call: executed by the CallHandler in its own goroutine, the answer is sent back
  - Notify: executed by the CallHandler in order, never answered
  - Result / Error: delivered to the waiting call with the same id
  - Snapshot / Update / Remove: handed to the SyncHandler in order

Calls wait on a channel together with the caller's context, so many calls
can be outstanding on one connection without occupying a thread each. When
the connection is torn down every waiting call fails with an
invoke.ConnectionLostError.

The Hub keeps the sessions of all connected peers, accepts connections from
listeners and broadcasts envelopes to every peer.
*/
package session
