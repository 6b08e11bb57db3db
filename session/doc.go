// Package session runs the connection lifecycle for one sensor.
//
// A Session dials the sensor with a connect timeout, reads newline-terminated lines,
// extracts a 13-digit code from each line and hands matches to a Dispatcher. Any
// dial or read failure, and a clean close by the sensor, leads to a fixed retry
// wait followed by a new connection attempt. There is no attempt limit and no
// backoff: Run only returns when its context is cancelled.
//
//	s, err := session.New(session.Deps{
//	    Endpoint:   session.Endpoint{Name: "dock-1", Host: "10.0.0.21", Port: 2112},
//	    Config:     session.DefaultConfig(),
//	    Dispatcher: dispatcher,
//	    Logger:     logger,
//	})
//	...
//	err = s.Run(ctx) // ctx.Err() on shutdown
//
// Every forwarded code is followed by a short pause (LineThrottle, 50ms by default).
// Lines without a code are processed back to back.
//
// IdleTimeout, when positive, treats a connection that delivers no data for that
// long as failed. It is disabled by default, so a sensor that stays connected but
// silent is waited on indefinitely.
package session
