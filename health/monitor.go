package health

import (
	"sync"
	"time"
)

// Monitor tracks health of multiple components in a thread-safe manner
type Monitor struct {
	mu       sync.RWMutex
	statuses map[string]Status
}

// Counts tallies components per level
type Counts struct {
	Healthy   int
	Degraded  int
	Unhealthy int
}

// NewMonitor creates a new health monitor
func NewMonitor() *Monitor {
	return &Monitor{
		statuses: make(map[string]Status),
	}
}

// Update updates the health status for a named component
func (m *Monitor) Update(name string, status Status) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// The map key wins over whatever the status carried
	status.Component = name
	if status.Timestamp.IsZero() {
		status.Timestamp = time.Now()
	}

	m.statuses[name] = status
}

// TransitionFunc computes the next status from the current one. Returning false
// leaves the stored status untouched.
type TransitionFunc func(current Status, exists bool) (next Status, apply bool)

// Transition reads and replaces one component's status atomically, so concurrent
// writers cannot interleave between the read and the write.
func (m *Monitor) Transition(name string, fn TransitionFunc) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.statuses[name]
	next, apply := fn(current, exists)
	if !apply {
		return current, false
	}

	next.Component = name
	if next.Timestamp.IsZero() {
		next.Timestamp = time.Now()
	}
	m.statuses[name] = next
	return next, true
}

// Get retrieves the health status for a named component
func (m *Monitor) Get(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status, exists := m.statuses[name]
	return status, exists
}

// Counts returns how many components sit at each level
func (m *Monitor) Counts() Counts {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var c Counts
	for _, status := range m.statuses {
		switch {
		case status.IsHealthy():
			c.Healthy++
		case status.IsDegraded():
			c.Degraded++
		default:
			c.Unhealthy++
		}
	}
	return c
}
