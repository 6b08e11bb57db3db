// Package supervisor runs one session per configured sensor
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/c360/sensorrelay/config"
	"github.com/c360/sensorrelay/errors"
	"github.com/c360/sensorrelay/forward"
	"github.com/c360/sensorrelay/health"
	"github.com/c360/sensorrelay/session"
)

// SystemName labels the aggregate health status
const SystemName = "sensorrelay"

// Deps holds runtime dependencies for the supervisor
type Deps struct {
	Sensors        []config.SensorConfig
	Session        session.Config
	Dispatcher     session.Dispatcher
	Logger         *slog.Logger
	Health         *health.Monitor  // optional
	StatusInterval time.Duration    // 0 disables the periodic summary
	Dial           session.DialFunc // optional
}

// Supervisor owns the sessions and their combined lifetime
type Supervisor struct {
	sessions       []*session.Session
	dispatcher     session.Dispatcher
	monitor        *health.Monitor
	logger         *slog.Logger
	statusInterval time.Duration

	running atomic.Bool
}

// New validates the sensor list and creates one session per sensor.
// Duplicate names or endpoints are rejected so each sensor has exactly one session.
func New(deps Deps) (*Supervisor, error) {
	if len(deps.Sensors) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Supervisor", "New", "no sensors configured")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	monitor := deps.Health
	if monitor == nil {
		monitor = health.NewMonitor()
	}

	s := &Supervisor{
		dispatcher:     deps.Dispatcher,
		monitor:        monitor,
		logger:         logger.With("component", "supervisor"),
		statusInterval: deps.StatusInterval,
	}

	names := make(map[string]struct{}, len(deps.Sensors))
	addrs := make(map[string]struct{}, len(deps.Sensors))
	for _, sensor := range deps.Sensors {
		ep := session.EndpointFrom(sensor)
		if _, dup := names[ep.Name]; dup {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: duplicate sensor name %q", errors.ErrInvalidConfig, ep.Name),
				"Supervisor", "New", "validate sensors")
		}
		if _, dup := addrs[ep.Address()]; dup {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: duplicate sensor endpoint %s", errors.ErrInvalidConfig, ep.Address()),
				"Supervisor", "New", "validate sensors")
		}
		names[ep.Name] = struct{}{}
		addrs[ep.Address()] = struct{}{}

		sess, err := session.New(session.Deps{
			Endpoint:      ep,
			Config:        deps.Session,
			Dispatcher:    deps.Dispatcher,
			Logger:        logger,
			Dial:          deps.Dial,
			OnStateChange: s.observe,
		})
		if err != nil {
			return nil, errors.Wrap(err, "Supervisor", "New", "create session "+ep.Name)
		}
		s.sessions = append(s.sessions, sess)
		monitor.Update(ep.Name, health.NewDegraded(ep.Name, "not yet connected"))
	}

	return s, nil
}

// Health returns the aggregate status with per-sensor metrics
func (s *Supervisor) Health() health.Status {
	subs := make([]health.Status, 0, len(s.sessions))
	for _, sess := range s.sessions {
		name := sess.Endpoint().Name
		status, ok := s.monitor.Get(name)
		if !ok {
			continue
		}
		stats := sess.Stats()
		subs = append(subs, status.WithMetrics(&health.Metrics{
			ErrorCount:        int(stats.Failures),
			MessagesProcessed: stats.Lines,
			LastActivity:      stats.LastActivity,
		}))
	}
	return health.Aggregate(SystemName, subs)
}

// Run starts every session and blocks until all of them have returned, which only
// happens once ctx is cancelled. A session that panics is contained and reported
// in the returned error while the others keep running.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Supervisor", "Run", "check running state")
	}
	defer s.running.Store(false)

	s.logger.Info("Starting sensor sessions", "sensors", len(s.sessions))

	// No shared cancellation: one session ending must not stop the others.
	var g errgroup.Group
	for _, sess := range s.sessions {
		sess := sess
		g.Go(func() error {
			return s.runSession(ctx, sess)
		})
	}

	if s.statusInterval > 0 {
		g.Go(func() error {
			s.reportStatus(ctx)
			return nil
		})
	}

	err := g.Wait()
	s.logger.Info("All sensor sessions stopped")
	return err
}

func (s *Supervisor) runSession(ctx context.Context, sess *session.Session) (err error) {
	name := sess.Endpoint().Name
	defer func() {
		if r := recover(); r != nil {
			err = errors.WrapFatal(fmt.Errorf("panic: %v", r), "Supervisor", "runSession", "run "+name)
			s.logger.Error("Sensor session panicked",
				"sensor", name, "panic", r, "stack", string(debug.Stack()))
			s.monitor.Update(name, health.NewUnhealthy(name, "session stopped after panic"))
		}
	}()

	err = sess.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// observe maps session states onto health levels. A sensor that keeps failing
// stays unhealthy through its retry cycle instead of flapping to degraded.
func (s *Supervisor) observe(ep session.Endpoint, state session.State, err error) {
	switch state {
	case session.StateConnected, session.StateReading:
		s.monitor.Update(ep.Name, health.NewHealthy(ep.Name, state.String()))
	case session.StateDisconnected, session.StateFailed:
		msg := state.String()
		if err != nil {
			msg = err.Error()
		}
		s.monitor.Update(ep.Name, health.NewUnhealthy(ep.Name, msg))
	case session.StateConnecting:
		s.monitor.Transition(ep.Name, func(current health.Status, exists bool) (health.Status, bool) {
			if exists && current.IsUnhealthy() {
				return current, false
			}
			return health.NewDegraded(ep.Name, state.String()), true
		})
	}
}

func (s *Supervisor) reportStatus(ctx context.Context) {
	ticker := time.NewTicker(s.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.logStatus()
		}
	}
}

func (s *Supervisor) logStatus() {
	agg := s.Health()
	counts := s.monitor.Counts()
	attrs := []any{
		"status", agg.Status,
		"sensors", len(s.sessions),
		"healthy", counts.Healthy,
		"degraded", counts.Degraded,
		"unhealthy", counts.Unhealthy,
	}
	if reporter, ok := s.dispatcher.(interface{ Stats() forward.Stats }); ok {
		fs := reporter.Stats()
		attrs = append(attrs, "forwarded", fs.Sent, "forward_failed", fs.Failed, "in_flight", fs.InFlight)
	}
	s.logger.Info("Relay status", attrs...)

	for _, sub := range agg.SubStatuses {
		attrs := []any{"sensor", sub.Component, "status", sub.Status}
		if m := sub.Metrics; m != nil {
			attrs = append(attrs, "lines", m.MessagesProcessed, "failures", m.ErrorCount)
			if !m.LastActivity.IsZero() {
				attrs = append(attrs, "last_activity", m.LastActivity.Format(time.RFC3339))
			}
		}
		if sub.IsUnhealthy() {
			attrs = append(attrs, "last_failure", sub.Timestamp.Format(time.RFC3339), "reason", sub.Message)
			s.logger.Warn("Sensor unhealthy", attrs...)
			continue
		}
		s.logger.Debug("Sensor status", attrs...)
	}
}
