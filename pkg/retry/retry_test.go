package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetry_Success(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		AddJitter:    false, // Disable for predictable tests
	}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	ctx := context.Background()
	cfg := Config{
		MaxAttempts:  3,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("persistent error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), DefaultConfig(), func() error {
		attempts++
		return NonRetryable(errors.New("bad credentials"))
	})

	require.Error(t, err)
	assert.True(t, IsNonRetryable(err))
	assert.Equal(t, 1, attempts)
	assert.Nil(t, NonRetryable(nil))
}

func TestRetry_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := Config{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     1 * time.Second,
		Multiplier:   2.0,
	}

	attempts := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, cfg, func() error {
		attempts++
		return errors.New("error")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.Less(t, attempts, 5)
}

func TestRetry_BackoffTiming(t *testing.T) {
	cfg := Config{
		MaxAttempts:  4,
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
	}

	start := time.Now()
	attempts := 0

	_ = Do(context.Background(), cfg, func() error {
		attempts++
		return errors.New("error")
	})

	// Delays: 10ms + 20ms + 40ms = 70ms minimum
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
	assert.Equal(t, 4, attempts)
}

func TestRetry_InvalidConfig(t *testing.T) {
	noop := func() error { return nil }

	assert.Error(t, Do(context.Background(), Config{InitialDelay: -1}, noop))
	assert.Error(t, Do(context.Background(), Config{MaxDelay: -1}, noop))
	assert.Error(t, Do(context.Background(), Config{Multiplier: -1}, noop))
	assert.Error(t, Do(context.Background(), Config{InitialDelay: time.Second, MaxDelay: time.Millisecond}, noop))
}

func TestRetry_ZeroAttempts(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), Config{MaxAttempts: 0}, func() error {
		attempts++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_BackoffCapsAtMaxDelay(t *testing.T) {
	cfg, err := Config{InitialDelay: time.Second, MaxDelay: 3 * time.Second, Multiplier: 2}.normalized()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.next(time.Second))
	assert.Equal(t, 3*time.Second, cfg.next(2*time.Second))
	assert.Equal(t, 3*time.Second, cfg.next(3*time.Second))

	huge, err := Config{Multiplier: 1e9}.normalized()
	require.NoError(t, err)
	assert.Equal(t, float64(maxMultiplier), huge.Multiplier)
}

func TestRetry_JitterBounded(t *testing.T) {
	cfg := Config{AddJitter: true}
	for i := 0; i < 50; i++ {
		w := cfg.wait(100 * time.Millisecond)
		assert.GreaterOrEqual(t, w, 100*time.Millisecond)
		assert.Less(t, w, 125*time.Millisecond)
	}
	assert.Equal(t, time.Second, Config{}.wait(time.Second))
}

func TestSleep_Elapses(t *testing.T) {
	start := time.Now()
	err := Sleep(context.Background(), 20*time.Millisecond)

	assert.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestSleep_CancelledEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Sleep(ctx, 5*time.Second)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleep_NonPositiveDuration(t *testing.T) {
	assert.NoError(t, Sleep(context.Background(), 0))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, 0), context.Canceled)
}
