// Package natsclient wraps the NATS Go client for the relay's optional code mirror.
//
// When a NATS URL is configured, every code forwarded to the HTTP sink is also
// published, with the same JSON payload, on a subject (sensors.codes by default).
// The mirror is strictly best effort: publish failures are logged by the caller and
// never affect the HTTP forward.
//
// # Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithName("sensorrelay"),
//	    natsclient.WithLogger(logger),
//	    natsclient.WithToken(token),
//	)
//	if err != nil {
//	    return err
//	}
//	if err := client.ConnectWithRetry(ctx, retry.DefaultConfig()); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	_ = client.Publish(ctx, "sensors.codes", payload)
//
// Publish never blocks on the network: nats.go buffers writes and reconnects in the
// background (MaxReconnects -1 by default). Publishing while disconnected returns a
// transient error wrapping errors.ErrNoConnection.
//
// Connect classifies failures: rejected credentials and a closed client are invalid,
// everything else is transient. ConnectWithRetry retries only the transient ones.
//
// # Connection states
//
// Disconnected → Connecting → Connected → Reconnecting → Connected. IsHealthy
// reports Connected.
//
// # Testing
//
// NewTestClient starts a NATS server with testcontainers-go. Tests that use it are
// guarded by the integration build tag:
//
//	go test -tags integration ./natsclient/...
package natsclient
