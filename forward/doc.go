// Package forward delivers extracted codes to the HTTP sink.
//
// HTTPSender performs exactly one POST per code:
//
//	POST <baseUrl><apiUrl>
//	Content-Type: application/json
//	X-Request-ID: <uuid>
//
//	{"IPAddress":"10.0.0.21","data":"1234567890123"}
//
// The sink is read from a SinkSource on every call, so a reloaded configuration
// applies to the next forward. The response status is reported but not interpreted;
// only transport failures (refused, timeout, DNS) are errors, classified transient.
//
// Dispatcher makes forwarding fire-and-forget. Dispatch starts a goroutine and
// returns immediately; the outcome is logged and counted, never retried:
//
//	d, _ := forward.NewDispatcher(forward.Deps{Sender: sender, Logger: logger})
//	d.Dispatch("10.0.0.21", "1234567890123")
//	...
//	_ = d.Shutdown(10 * time.Second) // drain in-flight forwards
//
// With a Mirror publisher the same payload is also published on MirrorSubject after
// the HTTP attempt. Mirror failures are logged and dropped.
package forward
