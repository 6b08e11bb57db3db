package supervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/sensorrelay/config"
	"github.com/c360/sensorrelay/errors"
	"github.com/c360/sensorrelay/health"
	"github.com/c360/sensorrelay/session"
)

type recordingDispatcher struct {
	mu    sync.Mutex
	codes map[string][]string // address -> codes
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{codes: make(map[string][]string)}
}

func (r *recordingDispatcher) Dispatch(address, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes[address] = append(r.codes[address], code)
}

func (r *recordingDispatcher) count(address string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.codes[address])
}

// syncBuffer is a goroutine-safe log sink
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startSensor accepts connections and writes one code line on each, keeping it open
func startSensor(t *testing.T, line string) config.SensorConfig {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				_, _ = conn.Write([]byte(line))
				_, _ = conn.Read(make([]byte, 1))
			}()
		}
	}()

	return sensorFor(t, "live", ln.Addr().String())
}

func deadSensor(t *testing.T, name string) config.SensorConfig {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return sensorFor(t, name, addr)
}

func sensorFor(t *testing.T, name, addr string) config.SensorConfig {
	t.Helper()
	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return config.SensorConfig{Name: name, IPAddress: host, Port: port}
}

func fastSession() session.Config {
	return session.Config{
		ConnectTimeout: 500 * time.Millisecond,
		RetryInterval:  20 * time.Millisecond,
	}
}

func TestNew_Validation(t *testing.T) {
	d := newRecordingDispatcher()
	a := config.SensorConfig{Name: "a", IPAddress: "10.0.0.1", Port: 4001}

	tests := []struct {
		name    string
		sensors []config.SensorConfig
	}{
		{"empty", nil},
		{"duplicate name", []config.SensorConfig{a, {Name: "a", IPAddress: "10.0.0.2", Port: 4001}}},
		{"duplicate endpoint", []config.SensorConfig{a, {Name: "b", IPAddress: "10.0.0.1", Port: 4001}}},
		{"bad port", []config.SensorConfig{{Name: "x", IPAddress: "10.0.0.1", Port: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Deps{Sensors: tt.sensors, Session: fastSession(), Dispatcher: d})
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestNew_OneSessionPerSensor(t *testing.T) {
	monitor := health.NewMonitor()
	sup, err := New(Deps{
		Sensors: []config.SensorConfig{
			{Name: "a", IPAddress: "10.0.0.1", Port: 4001},
			{Name: "b", IPAddress: "10.0.0.1", Port: 4002},
		},
		Session:    fastSession(),
		Dispatcher: newRecordingDispatcher(),
		Health:     monitor,
	})
	require.NoError(t, err)

	require.Len(t, sup.sessions, 2)
	assert.Equal(t, "a", sup.sessions[0].Endpoint().Name)
	assert.Equal(t, 2, monitor.Counts().Degraded)
}

func TestRun_SessionsAreIndependent(t *testing.T) {
	live := startSensor(t, "code 1234567890123\n")
	dead := deadSensor(t, "dead")
	d := newRecordingDispatcher()

	sup, err := New(Deps{
		Sensors:    []config.SensorConfig{dead, live},
		Session:    fastSession(),
		Dispatcher: d,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	assert.Eventually(t, func() bool {
		return d.count(live.IPAddress) == 1 && sup.sessions[0].Stats().ConnectAttempts >= 3
	}, 3*time.Second, 5*time.Millisecond)

	agg := sup.Health()
	assert.True(t, agg.IsUnhealthy())
	require.Len(t, agg.SubStatuses, 2)
	assert.NotNil(t, agg.SubStatuses[1].Metrics)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestRun_PanicIsContained(t *testing.T) {
	live := startSensor(t, "1234567890123\n")
	bad := config.SensorConfig{Name: "bad", IPAddress: "127.0.0.1", Port: 1}
	d := newRecordingDispatcher()
	monitor := health.NewMonitor()

	var dialer net.Dialer
	dial := func(ctx context.Context, network, address string) (net.Conn, error) {
		if address == "127.0.0.1:1" {
			panic("boom")
		}
		return dialer.DialContext(ctx, network, address)
	}

	sup, err := New(Deps{
		Sensors:    []config.SensorConfig{bad, live},
		Session:    fastSession(),
		Dispatcher: d,
		Health:     monitor,
		Dial:       dial,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	assert.Eventually(t, func() bool { return d.count(live.IPAddress) == 1 }, 2*time.Second, 5*time.Millisecond)
	status, ok := monitor.Get("bad")
	require.True(t, ok)
	assert.True(t, status.IsUnhealthy())
	assert.Contains(t, status.Message, "panic")

	cancel()
	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.IsFatal(err))
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestRun_RejectsSecondRun(t *testing.T) {
	sup, err := New(Deps{
		Sensors:    []config.SensorConfig{deadSensor(t, "a")},
		Session:    fastSession(),
		Dispatcher: newRecordingDispatcher(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)

	err = sup.Run(ctx)
	assert.ErrorIs(t, err, errors.ErrAlreadyStarted)

	cancel()
	<-done
}

func TestObserve_FailingSensorStaysUnhealthy(t *testing.T) {
	monitor := health.NewMonitor()
	sup, err := New(Deps{
		Sensors:    []config.SensorConfig{{Name: "a", IPAddress: "10.0.0.1", Port: 4001}},
		Session:    fastSession(),
		Dispatcher: newRecordingDispatcher(),
		Health:     monitor,
	})
	require.NoError(t, err)
	ep := sup.sessions[0].Endpoint()

	sup.observe(ep, session.StateConnecting, nil)
	st, _ := monitor.Get("a")
	assert.True(t, st.IsDegraded())

	sup.observe(ep, session.StateFailed, errors.ErrConnectionTimeout)
	sup.observe(ep, session.StateIdle, nil)
	sup.observe(ep, session.StateConnecting, nil)
	st, _ = monitor.Get("a")
	assert.True(t, st.IsUnhealthy())
	assert.Equal(t, errors.ErrConnectionTimeout.Error(), st.Message)

	sup.observe(ep, session.StateReading, nil)
	st, _ = monitor.Get("a")
	assert.True(t, st.IsHealthy())
}

func TestStatusReport(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))

	sup, err := New(Deps{
		Sensors:        []config.SensorConfig{deadSensor(t, "down")},
		Session:        fastSession(),
		Dispatcher:     newRecordingDispatcher(),
		Logger:         logger,
		StatusInterval: 30 * time.Millisecond,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	assert.Eventually(t, func() bool {
		out := logs.String()
		return bytes.Contains([]byte(out), []byte("Relay status")) &&
			bytes.Contains([]byte(out), []byte("Sensor unhealthy"))
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestLogStatus_ReportsAggregateAndPerSensorCounters(t *testing.T) {
	logs := &syncBuffer{}
	logger := slog.New(slog.NewJSONHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	sup, err := New(Deps{
		Sensors: []config.SensorConfig{
			{Name: "up", IPAddress: "10.0.0.1", Port: 4001},
			{Name: "down", IPAddress: "10.0.0.2", Port: 4001},
		},
		Session:    fastSession(),
		Dispatcher: newRecordingDispatcher(),
		Logger:     logger,
	})
	require.NoError(t, err)

	sup.observe(sup.sessions[0].Endpoint(), session.StateReading, nil)
	sup.observe(sup.sessions[1].Endpoint(), session.StateFailed, errors.ErrConnectionLost)
	sup.logStatus()

	entries := map[string]map[string]any{}
	for _, line := range bytes.Split(bytes.TrimSpace([]byte(logs.String())), []byte("\n")) {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		key, _ := entry["msg"].(string)
		if sensor, ok := entry["sensor"].(string); ok {
			key += "/" + sensor
		}
		entries[key] = entry
	}

	relay := entries["Relay status"]
	require.NotNil(t, relay)
	assert.Equal(t, health.LevelUnhealthy, relay["status"])
	assert.EqualValues(t, 1, relay["healthy"])
	assert.EqualValues(t, 1, relay["unhealthy"])

	up := entries["Sensor status/up"]
	require.NotNil(t, up)
	assert.Equal(t, health.LevelHealthy, up["status"])
	assert.Contains(t, up, "lines")
	assert.Contains(t, up, "failures")

	down := entries["Sensor unhealthy/down"]
	require.NotNil(t, down)
	assert.Equal(t, errors.ErrConnectionLost.Error(), down["reason"])
}
