package config

import (
	"context"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/sensorrelay/errors"
)

// Manager owns the live configuration. Readers get the current document through an
// atomic pointer; reloads swap in a fully validated replacement or keep the old one.
type Manager struct {
	path    string
	loader  *Loader
	logger  *slog.Logger
	current atomic.Pointer[Config]

	mu      sync.Mutex // serializes reloads, guards modTime and size
	modTime time.Time
	size    int64

	reloads atomic.Int64

	// Lifecycle management
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	started    atomic.Bool
	stopped    atomic.Bool
}

// NewManager loads path once. Failure here is fatal to the caller.
func NewManager(path string, loader *Loader, logger *slog.Logger) (*Manager, error) {
	if loader == nil {
		loader = NewLoader()
	}
	if logger == nil {
		logger = slog.Default()
	}

	m := &Manager{
		path:   path,
		loader: loader,
		logger: logger.With("component", "config"),
	}

	info, statErr := os.Stat(path)
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if statErr == nil {
		m.modTime = info.ModTime()
		m.size = info.Size()
	}
	m.current.Store(cfg)
	return m, nil
}

// NewStaticManager wraps an already validated config without a backing file.
// Reload is a no-op.
func NewStaticManager(cfg *Config) *Manager {
	m := &Manager{logger: slog.Default()}
	m.current.Store(cfg)
	return m
}

// Path returns the backing file
func (m *Manager) Path() string {
	return m.path
}

// Current returns the live configuration. The returned value is shared and must
// not be modified.
func (m *Manager) Current() *Config {
	return m.current.Load()
}

// Sink returns the live forwarding destination
func (m *Manager) Sink() SinkConfig {
	return m.current.Load().Sink()
}

// Reloads counts successful swaps
func (m *Manager) Reloads() int64 {
	return m.reloads.Load()
}

// Reload re-reads the file unconditionally. It reports whether the live
// configuration changed. On error the previous configuration stays active.
func (m *Manager) Reload() (bool, error) {
	if m.path == "" {
		return false, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// A rejected file is not retried until it changes again
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
		m.size = info.Size()
	}

	next, err := m.loader.LoadFile(m.path)
	if err != nil {
		m.logger.Warn("Config reload rejected, keeping previous configuration",
			"path", m.path, "error", err, "class", errors.Classify(err).String())
		return false, errors.Wrap(err, "Manager", "Reload", "load config")
	}

	prev := m.current.Load()
	if !prev.SameSensors(next) {
		m.logger.Warn("Sensor list changed on disk; restart required to apply",
			"running", len(prev.Sensors), "configured", len(next.Sensors))
		next.Sensors = append([]SensorConfig(nil), prev.Sensors...)
	}

	if reflect.DeepEqual(prev, next) {
		m.logger.Debug("Config reloaded without changes", "path", m.path)
		return false, nil
	}

	m.current.Store(next)
	m.reloads.Add(1)

	if prev.Sink() != next.Sink() {
		m.logger.Info("Sink configuration updated",
			"old_url", prev.Sink().URL(), "new_url", next.Sink().URL(),
			"timeout", next.Forward.Timeout.String())
	} else {
		m.logger.Info("Configuration reloaded", "path", m.path)
	}
	return true, nil
}

// Start polls the file every reloadInterval and reloads it when its modification
// time or size changed. A zero interval disables polling; Reload still works.
func (m *Manager) Start(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.ErrAlreadyStarted
	}
	m.shutdownCh = make(chan struct{})

	interval := m.Current().ReloadInterval.Duration()
	if interval <= 0 || m.path == "" {
		m.logger.Debug("Config polling disabled")
		return nil
	}

	m.wg.Add(1)
	go m.poll(ctx, interval)
	return nil
}

// Stop ends polling, waiting at most timeout for the poller to exit
func (m *Manager) Stop(timeout time.Duration) error {
	if !m.started.Load() {
		return errors.ErrNotStarted
	}
	if !m.stopped.CompareAndSwap(false, true) {
		return nil
	}
	close(m.shutdownCh)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		m.logger.Warn("Manager shutdown timeout", "timeout", timeout)
	}
	return nil
}

func (m *Manager) poll(ctx context.Context, interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.shutdownCh:
			return
		case <-ticker.C:
			m.checkForChanges()
		}
	}
}

func (m *Manager) checkForChanges() {
	info, err := os.Stat(m.path)
	if err != nil {
		m.logger.Warn("Cannot stat config file", "path", m.path, "error", err)
		return
	}

	m.mu.Lock()
	unchanged := info.ModTime().Equal(m.modTime) && info.Size() == m.size
	m.mu.Unlock()
	if unchanged {
		return
	}

	// Errors are logged by Reload
	_, _ = m.Reload()
}
