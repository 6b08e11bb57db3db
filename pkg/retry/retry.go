// Package retry provides exponential backoff retry and context-aware waits for the relay
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"
)

const maxMultiplier = 1000

var (
	jitterMu  sync.Mutex
	jitterRnd = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// NonRetryableError marks an error that ends Do on the attempt that returned it
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return fmt.Sprintf("non-retryable: %v", e.Err)
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable marks err so Do returns it without further attempts. A nil err stays nil.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// IsNonRetryable reports whether err, or anything it wraps, was marked by NonRetryable
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	return errors.As(err, &nre)
}

// Config controls the attempt count and the backoff between attempts.
// Zero fields take the DefaultConfig values, except MaxAttempts where zero means one try.
type Config struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	AddJitter    bool // up to 25% extra per wait
}

// DefaultConfig returns 3 attempts with a 100ms to 5s doubling backoff
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
		AddJitter:    true,
	}
}

func (c Config) normalized() (Config, error) {
	switch {
	case c.InitialDelay < 0:
		return c, errors.New("retry: InitialDelay cannot be negative")
	case c.MaxDelay < 0:
		return c, errors.New("retry: MaxDelay cannot be negative")
	case c.Multiplier < 0:
		return c, errors.New("retry: Multiplier cannot be negative")
	}

	def := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.InitialDelay == 0 {
		c.InitialDelay = def.InitialDelay
	}
	if c.MaxDelay == 0 {
		c.MaxDelay = def.MaxDelay
	}
	if c.Multiplier == 0 {
		c.Multiplier = def.Multiplier
	}
	c.Multiplier = min(c.Multiplier, maxMultiplier)

	if c.MaxDelay < c.InitialDelay {
		return c, errors.New("retry: MaxDelay must be >= InitialDelay")
	}
	return c, nil
}

// next grows delay by the multiplier, capped at MaxDelay
func (c Config) next(delay time.Duration) time.Duration {
	grown := float64(delay) * c.Multiplier
	if grown >= float64(c.MaxDelay) {
		return c.MaxDelay
	}
	return time.Duration(grown)
}

func (c Config) wait(delay time.Duration) time.Duration {
	if !c.AddJitter || delay < 4 {
		return delay
	}
	jitterMu.Lock()
	extra := time.Duration(jitterRnd.Int63n(int64(delay / 4)))
	jitterMu.Unlock()
	return delay + extra
}

// Do runs fn until it succeeds, returns a NonRetryable error, the attempts run out,
// or ctx ends. There is no wait after the last attempt.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	cfg, err := cfg.normalized()
	if err != nil {
		return err
	}

	var lastErr error
	delay := cfg.InitialDelay
	for attempt := 1; ; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if IsNonRetryable(lastErr) {
			return lastErr
		}
		if ctx.Err() != nil {
			return fmt.Errorf("retry cancelled before attempt %d: %w", attempt, ctx.Err())
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("retry failed after %d attempts: %w", cfg.MaxAttempts, lastErr)
		}

		if err := Sleep(ctx, cfg.wait(delay)); err != nil {
			return fmt.Errorf("retry cancelled during backoff for attempt %d: %w", attempt+1, err)
		}
		delay = cfg.next(delay)
	}
}

// Sleep pauses for d or until ctx is done, whichever comes first.
// It returns ctx.Err() when the wait was cut short and nil otherwise.
// A non-positive d only checks the context.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
