package forward

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/sensorrelay/errors"
)

// Publisher mirrors payloads to a message subject
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Stats counts dispatcher activity since creation
type Stats struct {
	Dispatched   int64
	Sent         int64
	Failed       int64
	Dropped      int64
	Mirrored     int64
	MirrorFailed int64
	InFlight     int64
}

// Deps holds Dispatcher dependencies
type Deps struct {
	Sender        Sender
	Mirror        Publisher // optional
	MirrorSubject string
	Logger        *slog.Logger
}

// Dispatcher runs each forward on its own goroutine. Callers never wait on the sink.
type Dispatcher struct {
	sender        Sender
	mirror        Publisher
	mirrorSubject string
	logger        *slog.Logger

	// Forwards outlive the caller's context; cancel aborts stragglers at shutdown.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex // guards closed against wg.Add
	closed bool

	dispatched   atomic.Int64
	sent         atomic.Int64
	failed       atomic.Int64
	dropped      atomic.Int64
	mirrored     atomic.Int64
	mirrorFailed atomic.Int64
	inFlight     atomic.Int64
}

// NewDispatcher creates a dispatcher
func NewDispatcher(deps Deps) (*Dispatcher, error) {
	if deps.Sender == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Dispatcher", "NewDispatcher", "sender is required")
	}
	if deps.Mirror != nil && deps.MirrorSubject == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Dispatcher", "NewDispatcher", "mirror subject is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		sender:        deps.Sender,
		mirror:        deps.Mirror,
		mirrorSubject: deps.MirrorSubject,
		logger:        logger.With("component", "forward"),
		ctx:           ctx,
		cancel:        cancel,
	}, nil
}

// Dispatch forwards code from the sensor at address in the background.
// After Shutdown it drops the code.
func (d *Dispatcher) Dispatch(address, code string) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.dropped.Add(1)
		d.logger.Warn("Dispatcher closed, dropping code", "ip", address, "code", code)
		return
	}
	d.wg.Add(1)
	d.mu.RUnlock()

	d.dispatched.Add(1)
	d.inFlight.Add(1)
	go d.forward(address, code)
}

func (d *Dispatcher) forward(address, code string) {
	defer d.wg.Done()
	defer d.inFlight.Add(-1)

	result, err := d.sender.Send(d.ctx, address, code)
	if err != nil {
		d.failed.Add(1)
		d.logger.Error("Error sending data to API",
			"ip", address, "code", code, "url", result.URL,
			"request_id", result.RequestID, "error", err)
	} else {
		d.sent.Add(1)
		d.logger.Info("Data sent to API",
			"ip", address, "code", code, "url", result.URL,
			"status_code", result.StatusCode, "request_id", result.RequestID,
			"duration", result.Duration)
	}

	if d.mirror == nil {
		return
	}
	body, err := Payload{IPAddress: address, Data: code}.Encode()
	if err == nil {
		err = d.mirror.Publish(d.ctx, d.mirrorSubject, body)
	}
	if err != nil {
		d.mirrorFailed.Add(1)
		d.logger.Warn("Mirror publish failed", "subject", d.mirrorSubject, "code", code, "error", err)
		return
	}
	d.mirrored.Add(1)
}

// Shutdown stops accepting codes and waits up to timeout for in-flight forwards.
// Forwards still running after timeout are cancelled.
func (d *Dispatcher) Shutdown(timeout time.Duration) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-time.After(timeout):
		d.cancel()
		pending := d.inFlight.Load()
		return errors.WrapTransient(fmt.Errorf("%d forwards still in flight after %v", pending, timeout),
			"Dispatcher", "Shutdown", "drain forwards")
	}
}

// Stats returns a snapshot of the counters
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched:   d.dispatched.Load(),
		Sent:         d.sent.Load(),
		Failed:       d.failed.Load(),
		Dropped:      d.dropped.Load(),
		Mirrored:     d.mirrored.Load(),
		MirrorFailed: d.mirrorFailed.Load(),
		InFlight:     d.inFlight.Load(),
	}
}
