// Package retry provides simple exponential backoff retry logic and context-aware waits.
//
// # Core Functions
//
//   - Do: execute a function with retry and exponential backoff
//   - Sleep: wait for a fixed duration unless the context ends first
//
// # Configuration
//
// DefaultConfig() gives 3 attempts with a 100ms-5s doubling delay. Zero fields in a
// Config fall back to those values.
//
// # Usage
//
// Bounded retry while connecting to the optional NATS mirror at startup. Errors that
// will not improve on a second try are wrapped with NonRetryable:
//
//	err := retry.Do(ctx, retry.DefaultConfig(), func() error {
//	    err := client.Connect(ctx)
//	    if err != nil && !errors.IsTransient(err) {
//	        return retry.NonRetryable(err)
//	    }
//	    return err
//	})
//
// Fixed-interval waits in the sensor session loop. Sessions retry forever with a
// constant interval, so they do not use Do; they call Sleep between attempts:
//
//	if err := retry.Sleep(ctx, cfg.RetryInterval); err != nil {
//	    return err // process is shutting down
//	}
//
// # Design Philosophy
//
// This package is intentionally minimal:
//
//   - No circuit breakers
//   - No metrics collection (log at the call site)
//   - No error classification (caller decides what to retry, or wraps with NonRetryable)
//
// All functions are safe for concurrent use. The jitter mechanism uses a
// mutex-protected random source.
package retry
