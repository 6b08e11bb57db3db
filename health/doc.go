// Package health provides thread-safe health tracking for the relay's sensor
// sessions.
//
// # Health States
//
//   - Healthy: the session is connected and reading lines
//   - Degraded: the session is connecting or between attempts
//   - Unhealthy: the last connect or read failed
//
// # Usage
//
//	monitor := health.NewMonitor()
//	monitor.Update("dock-1", health.NewHealthy("dock-1", "reading"))
//	monitor.Update("dock-2", health.NewUnhealthy("dock-2", "connection refused"))
//
//	c := monitor.Counts() // {Healthy:1 Degraded:0 Unhealthy:1}
//
// Transition applies a read-modify-write under the monitor lock, which lets the
// supervisor keep a failing sensor unhealthy through its retry cycle:
//
//	monitor.Transition("dock-2", func(cur health.Status, ok bool) (health.Status, bool) {
//	    if ok && cur.IsUnhealthy() {
//	        return cur, false
//	    }
//	    return health.NewDegraded("dock-2", "connecting"), true
//	})
//
// Aggregate rolls per-sensor statuses into one system status; the supervisor logs
// it, with each sensor's counters attached through WithMetrics, on every status tick.
package health
