// Package supervisor starts one session per configured sensor and keeps them
// running side by side until the process shuts down.
//
// Sessions run in an errgroup.Group without a shared context, so a session that
// ends early (only possible through a panic, which is recovered and reported as a
// fatal error) never stops the others. Run returns once every session has returned.
//
// Session state changes feed a health.Monitor:
//
//	connected, reading        → healthy
//	connecting (first time)   → degraded
//	disconnected, failed      → unhealthy until the next successful connect
//
// With a positive StatusInterval a one-line relay summary is logged periodically,
// followed by one warning per unhealthy sensor.
package supervisor
