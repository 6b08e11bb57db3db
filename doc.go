// Package sensorrelay reads newline-terminated text from a fixed set of TCP sensors
// and forwards every 13-digit code it finds to an HTTP endpoint.
//
// # Architecture
//
//	┌──────────────┐   lines   ┌──────────────┐  codes  ┌──────────────┐  POST  ┌──────┐
//	│ sensor (TCP) │ ────────▶ │   session    │ ──────▶ │   forward    │ ─────▶ │ sink │
//	└──────────────┘           │ (one/sensor) │         │  dispatcher  │        └──────┘
//	                           └──────────────┘         └──────┬───────┘
//	                                  ▲                        │ optional
//	                           ┌──────┴───────┐         ┌──────▼───────┐
//	                           │  supervisor  │         │  natsclient  │
//	                           └──────────────┘         └──────────────┘
//
// Packages:
//   - extract: line → optional 13-digit code
//   - session: connect, read, reconnect loop for one sensor
//   - supervisor: runs all sessions independently and tracks their health
//   - forward: fire-and-forget HTTP POST of {"IPAddress", "data"}, optional NATS mirror
//   - config: JSON/JSONC/YAML document, schema validation, live sink reload
//   - health: per-sensor status and aggregation
//   - natsclient: NATS connection lifecycle for the mirror
//   - errors: classified errors (transient, invalid, fatal)
//   - pkg/retry: backoff and context-aware waits
//
// The binary lives in cmd/sensorrelay.
//
// # Delivery
//
// Delivery is best effort. A code is posted once; a failed POST is logged and dropped.
// A code is never lost to a sensor reconnect once its line was read, and a sink
// failure never stalls the session that produced the code.
package sensorrelay
