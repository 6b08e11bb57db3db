package session

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/c360/sensorrelay/config"
	"github.com/c360/sensorrelay/errors"
	"github.com/c360/sensorrelay/extract"
	"github.com/c360/sensorrelay/pkg/retry"
)

// Endpoint identifies one sensor
type Endpoint struct {
	Name string
	Host string
	Port int
}

// Address returns host:port
func (e Endpoint) Address() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// EndpointFrom converts a configured sensor
func EndpointFrom(s config.SensorConfig) Endpoint {
	return Endpoint{Name: s.Name, Host: s.IPAddress, Port: s.Port}
}

// State is the connection state of a session
type State int32

// Session states. A session cycles Idle → Connecting → Connected → Reading →
// Disconnected or Failed → Idle until its context ends.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateReading
	StateDisconnected
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReading:
		return "reading"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds session timings
type Config struct {
	ConnectTimeout time.Duration
	RetryInterval  time.Duration
	LineThrottle   time.Duration // pause after each forwarded code
	IdleTimeout    time.Duration // 0 waits on a silent connection forever
}

// DefaultConfig returns the standard timings
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: config.DefaultConnectTimeout,
		RetryInterval:  config.DefaultRetryInterval,
		LineThrottle:   config.DefaultLineThrottle,
	}
}

// ConfigFrom converts the document section
func ConfigFrom(c config.SessionConfig) Config {
	return Config{
		ConnectTimeout: c.ConnectTimeout.Duration(),
		RetryInterval:  c.RetryInterval.Duration(),
		LineThrottle:   c.LineThrottle.Duration(),
		IdleTimeout:    c.IdleTimeout.Duration(),
	}
}

// Dispatcher accepts extracted codes without blocking
type Dispatcher interface {
	Dispatch(address, code string)
}

// DialFunc opens a stream connection; net.Dialer.DialContext satisfies it
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

// StateChangeFunc observes transitions. err is set for Disconnected and Failed.
type StateChangeFunc func(ep Endpoint, state State, err error)

// Deps holds runtime dependencies for a session
type Deps struct {
	Endpoint      Endpoint
	Config        Config
	Dispatcher    Dispatcher
	Logger        *slog.Logger
	Dial          DialFunc        // optional
	OnStateChange StateChangeFunc // optional
}

// Stats is a snapshot of session counters
type Stats struct {
	State           State
	ConnectAttempts int64
	Connections     int64
	Lines           int64
	Codes           int64
	Failures        int64
	LastError       string
	LastActivity    time.Time
}

// Session owns the connection lifecycle of one sensor
type Session struct {
	endpoint      Endpoint
	cfg           Config
	dispatcher    Dispatcher
	dial          DialFunc
	onStateChange StateChangeFunc
	logger        *slog.Logger

	state        atomic.Int32
	attempts     atomic.Int64
	connections  atomic.Int64
	lines        atomic.Int64
	codes        atomic.Int64
	failures     atomic.Int64
	lastError    atomic.Value // string
	lastActivity atomic.Value // time.Time
}

// New creates a session
func New(deps Deps) (*Session, error) {
	if deps.Dispatcher == nil {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "Session", "New", "dispatcher is required")
	}
	if deps.Endpoint.Host == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Session", "New", "endpoint host is required")
	}
	if deps.Endpoint.Port < 1 || deps.Endpoint.Port > 65535 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Session", "New",
			fmt.Sprintf("endpoint port %d", deps.Endpoint.Port))
	}
	if deps.Config.ConnectTimeout <= 0 || deps.Config.RetryInterval <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "Session", "New", "timings must be positive")
	}

	dial := deps.Dial
	if dial == nil {
		dial = (&net.Dialer{}).DialContext
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		endpoint:      deps.Endpoint,
		cfg:           deps.Config,
		dispatcher:    deps.Dispatcher,
		dial:          dial,
		onStateChange: deps.OnStateChange,
		logger: logger.With("component", "session",
			"sensor", deps.Endpoint.Name, "address", deps.Endpoint.Address()),
	}
	s.lastError.Store("")
	s.lastActivity.Store(time.Time{})
	return s, nil
}

// Endpoint returns the sensor this session serves
func (s *Session) Endpoint() Endpoint {
	return s.endpoint
}

// State returns the current state
func (s *Session) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the counters
func (s *Session) Stats() Stats {
	return Stats{
		State:           s.State(),
		ConnectAttempts: s.attempts.Load(),
		Connections:     s.connections.Load(),
		Lines:           s.lines.Load(),
		Codes:           s.codes.Load(),
		Failures:        s.failures.Load(),
		LastError:       s.lastError.Load().(string),
		LastActivity:    s.lastActivity.Load().(time.Time),
	}
}

func (s *Session) setState(state State, err error) {
	s.state.Store(int32(state))
	if err != nil {
		s.lastError.Store(err.Error())
	}
	if s.onStateChange != nil {
		s.onStateChange(s.endpoint, state, err)
	}
}

// Run connects, reads and retries until ctx is cancelled, then returns ctx.Err().
// Connection failures never end the session.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("Starting sensor session",
		"connect_timeout", s.cfg.ConnectTimeout,
		"retry_interval", s.cfg.RetryInterval,
		"idle_timeout", s.cfg.IdleTimeout)

	for {
		if err := ctx.Err(); err != nil {
			s.setState(StateIdle, nil)
			return err
		}

		if err := s.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			s.failures.Add(1)
			s.logger.Info("Retrying sensor connection", "retry_in", s.cfg.RetryInterval)
		}

		if err := retry.Sleep(ctx, s.cfg.RetryInterval); err != nil {
			s.setState(StateIdle, nil)
			s.logger.Info("Sensor session stopped")
			return err
		}
		s.setState(StateIdle, nil)
	}
}

// connectAndRead runs one Connecting → Reading cycle and reports why it ended
func (s *Session) connectAndRead(ctx context.Context) error {
	conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Unblock the reader when the process shuts down
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	return s.readLines(ctx, conn)
}

func (s *Session) connect(ctx context.Context) (net.Conn, error) {
	s.setState(StateConnecting, nil)
	s.attempts.Add(1)
	s.logger.Info("Connecting to sensor")

	dialCtx, cancel := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	conn, err := s.dial(dialCtx, "tcp", s.endpoint.Address())
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			err = fmt.Errorf("%w after %v: %w", errors.ErrConnectionTimeout, s.cfg.ConnectTimeout, err)
		}
		err = errors.WrapTransient(err, "Session", "connect", "dial sensor")
		s.setState(StateFailed, err)
		s.logger.Error("Error connecting to sensor", "error", err, "class", errors.Classify(err).String())
		return nil, err
	}

	s.connections.Add(1)
	s.setState(StateConnected, nil)
	s.logger.Info("Connected to sensor")
	return conn, nil
}

func (s *Session) readLines(ctx context.Context, conn net.Conn) error {
	s.setState(StateReading, nil)
	reader := bufio.NewReader(conn)

	for {
		if s.cfg.IdleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.cfg.IdleTimeout))
		}

		line, readErr := reader.ReadString('\n')
		if line != "" {
			// A final unterminated line arrives together with io.EOF
			if err := s.handleLine(ctx, line); err != nil {
				return err
			}
		}
		if readErr == nil {
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case errors.Is(readErr, io.EOF):
			err := errors.WrapTransient(fmt.Errorf("%w: %w", errors.ErrConnectionLost, readErr),
				"Session", "readLines", "read line")
			s.setState(StateDisconnected, err)
			s.logger.Warn("Sensor closed the connection")
			return err
		case s.cfg.IdleTimeout > 0 && isTimeout(readErr):
			err := errors.WrapTransient(
				fmt.Errorf("%w: no data for %v", errors.ErrConnectionTimeout, s.cfg.IdleTimeout),
				"Session", "readLines", "read line")
			s.setState(StateFailed, err)
			s.logger.Error("Sensor idle timeout", "error", err)
			return err
		default:
			err := errors.WrapTransient(readErr, "Session", "readLines", "read line")
			s.setState(StateFailed, err)
			s.logger.Error("Error reading from sensor", "error", err, "class", errors.Classify(err).String())
			return err
		}
	}
}

// handleLine logs the raw line, extracts a code and forwards it. Only a forwarded
// code is followed by the throttle pause.
func (s *Session) handleLine(ctx context.Context, line string) error {
	line = strings.TrimSuffix(line, "\n")
	line = strings.TrimSuffix(line, "\r")

	s.lines.Add(1)
	s.lastActivity.Store(time.Now())
	s.logger.Info("Received data", "line", line)

	code, ok := extract.Code(line)
	if !ok {
		return nil
	}

	s.codes.Add(1)
	s.logger.Debug("Extracted code", "code", code)
	if s.logger.Enabled(ctx, slog.LevelDebug) {
		if all := extract.Codes(line); len(all) > 1 {
			s.logger.Debug("Line holds more than one code, forwarding the first", "codes", all)
		}
	}
	s.dispatcher.Dispatch(s.endpoint.Host, code)

	return retry.Sleep(ctx, s.cfg.LineThrottle)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
