/*
Package invoke implements remote method invocation on top of the structured
codec.

A Method declares its name, the value types of its positional parameters and
its result type. The Dispatcher holds the methods of a process and executes
them, either for a local caller (Invoke) or for a call envelope received from
a peer (Handle). The Invoker chooses the path per call: local while no
PeerContext is attached, remote otherwise. Both paths check the arguments
against the same signature, so a call behaves the same wherever it runs.

Errors:

  - UnknownMethodError: the name is not registered on the executing side
  - ArgumentMismatchError: wrong arity or an argument that does not match its parameter type
  - ConnectionLostError: the connection was torn down while a call was waiting
  - RemoteError: the remote handler returned an error

Every call is counted (VictoriaMetrics, dsync_invoke_calls_total) and timed
(go-metrics timers, see Stats).
*/
package invoke
