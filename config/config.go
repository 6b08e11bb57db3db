package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/c360/sensorrelay/errors"
	"github.com/c360/sensorrelay/pkg/tlsutil"
)

// Default values applied before the document is decoded.
const (
	DefaultConnectTimeout = 20 * time.Second
	DefaultRetryInterval  = 20 * time.Second
	DefaultLineThrottle   = 50 * time.Millisecond
	DefaultForwardTimeout = 30 * time.Second
	DefaultReloadInterval = 30 * time.Second
	DefaultStatusInterval = 60 * time.Second
	DefaultNATSSubject    = "sensors.codes"

	DefaultNATSMaxReconnects  = -1 // unlimited
	DefaultNATSReconnectWait  = 2 * time.Second
	DefaultNATSPingInterval   = 30 * time.Second
	DefaultNATSConnectTimeout = 5 * time.Second
	DefaultNATSDrainTimeout   = 30 * time.Second
)

// Config is the relay configuration document.
type Config struct {
	BaseURL        string         `json:"baseUrl"        yaml:"baseUrl"`
	APIURL         string         `json:"apiUrl"         yaml:"apiUrl"`
	Sensors        []SensorConfig `json:"sensors"        yaml:"sensors"`
	Session        SessionConfig  `json:"session"        yaml:"session"`
	Forward        ForwardConfig  `json:"forward"        yaml:"forward"`
	NATS           NATSConfig     `json:"nats"           yaml:"nats"`
	ReloadInterval Duration       `json:"reloadInterval" yaml:"reloadInterval"`
	StatusInterval Duration       `json:"statusInterval" yaml:"statusInterval"`
}

// SensorConfig describes one sensor endpoint
type SensorConfig struct {
	Name      string `json:"name"      yaml:"name"`
	IPAddress string `json:"ipAddress" yaml:"ipAddress"`
	Port      int    `json:"port"      yaml:"port"`
}

// Address returns host:port for dialing
func (s SensorConfig) Address() string {
	return net.JoinHostPort(s.IPAddress, strconv.Itoa(s.Port))
}

// SessionConfig holds the per-sensor connection timings
type SessionConfig struct {
	ConnectTimeout Duration `json:"connectTimeout" yaml:"connectTimeout"`
	RetryInterval  Duration `json:"retryInterval"  yaml:"retryInterval"`
	LineThrottle   Duration `json:"lineThrottle"   yaml:"lineThrottle"`
	IdleTimeout    Duration `json:"idleTimeout"    yaml:"idleTimeout"` // 0 disables
}

// ForwardConfig holds HTTP forwarding settings. TLS applies at startup only.
type ForwardConfig struct {
	Timeout Duration             `json:"timeout"       yaml:"timeout"`
	TLS     tlsutil.ClientConfig `json:"tls,omitempty" yaml:"tls,omitempty"`
}

// NATSConfig configures the optional code mirror. An empty URL disables it.
// Connection settings are read at startup only.
type NATSConfig struct {
	URL     string `json:"url"     yaml:"url"`
	Subject string `json:"subject" yaml:"subject"`

	User     string `json:"user,omitempty"     yaml:"user,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Token    string `json:"token,omitempty"    yaml:"token,omitempty"`

	MaxReconnects  int      `json:"maxReconnects"  yaml:"maxReconnects"`
	ReconnectWait  Duration `json:"reconnectWait"  yaml:"reconnectWait"`
	PingInterval   Duration `json:"pingInterval"   yaml:"pingInterval"`
	ConnectTimeout Duration `json:"connectTimeout" yaml:"connectTimeout"`
	DrainTimeout   Duration `json:"drainTimeout"   yaml:"drainTimeout"`
}

// Enabled reports whether a mirror connection is configured
func (n NATSConfig) Enabled() bool {
	return n.URL != ""
}

// SinkConfig is the HTTP destination for extracted codes
type SinkConfig struct {
	BaseURL string
	APIPath string
	Timeout time.Duration
}

// URL joins the base URL and API path by plain concatenation
func (s SinkConfig) URL() string {
	return s.BaseURL + s.APIPath
}

// Default returns a configuration with every optional field populated.
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ConnectTimeout: Duration(DefaultConnectTimeout),
			RetryInterval:  Duration(DefaultRetryInterval),
			LineThrottle:   Duration(DefaultLineThrottle),
		},
		Forward: ForwardConfig{
			Timeout: Duration(DefaultForwardTimeout),
		},
		NATS: NATSConfig{
			Subject:        DefaultNATSSubject,
			MaxReconnects:  DefaultNATSMaxReconnects,
			ReconnectWait:  Duration(DefaultNATSReconnectWait),
			PingInterval:   Duration(DefaultNATSPingInterval),
			ConnectTimeout: Duration(DefaultNATSConnectTimeout),
			DrainTimeout:   Duration(DefaultNATSDrainTimeout),
		},
		ReloadInterval: Duration(DefaultReloadInterval),
		StatusInterval: Duration(DefaultStatusInterval),
	}
}

// Sink extracts the forwarding destination
func (c *Config) Sink() SinkConfig {
	return SinkConfig{
		BaseURL: c.BaseURL,
		APIPath: c.APIURL,
		Timeout: c.Forward.Timeout.Duration(),
	}
}

// SameSensors reports whether both documents list the same sensors in the same order
func (c *Config) SameSensors(other *Config) bool {
	if len(c.Sensors) != len(other.Sensors) {
		return false
	}
	for i := range c.Sensors {
		if c.Sensors[i] != other.Sensors[i] {
			return false
		}
	}
	return true
}

// Validate runs the structural schema check and then the semantic checks
func (c *Config) Validate() error {
	if err := validateSchema(c); err != nil {
		return err
	}
	if err := c.validateSemantics(); err != nil {
		return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Config", "Validate", "semantic validation")
	}
	return nil
}

func (c *Config) validateSemantics() error {
	sink := c.Sink().URL()
	u, err := url.Parse(sink)
	if err != nil {
		return fmt.Errorf("sink url %q: %w", sink, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("sink url %q: scheme must be http or https", sink)
	}
	if u.Host == "" {
		return fmt.Errorf("sink url %q: missing host", sink)
	}

	if len(c.Sensors) == 0 {
		return fmt.Errorf("no sensors configured")
	}

	names := make(map[string]struct{}, len(c.Sensors))
	addrs := make(map[string]string, len(c.Sensors))
	for i, s := range c.Sensors {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("sensors[%d]: name is required", i)
		}
		if strings.TrimSpace(s.IPAddress) == "" {
			return fmt.Errorf("sensor %s: ipAddress is required", s.Name)
		}
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("sensor %s: port %d out of range", s.Name, s.Port)
		}
		if _, dup := names[s.Name]; dup {
			return fmt.Errorf("duplicate sensor name %q", s.Name)
		}
		names[s.Name] = struct{}{}
		if other, dup := addrs[s.Address()]; dup {
			return fmt.Errorf("sensors %s and %s share endpoint %s", other, s.Name, s.Address())
		}
		addrs[s.Address()] = s.Name
	}

	if c.Session.ConnectTimeout <= 0 {
		return fmt.Errorf("session.connectTimeout must be positive")
	}
	if c.Session.RetryInterval <= 0 {
		return fmt.Errorf("session.retryInterval must be positive")
	}
	if c.Session.LineThrottle < 0 || c.Session.IdleTimeout < 0 {
		return fmt.Errorf("session durations cannot be negative")
	}
	if c.Forward.Timeout < 0 || c.ReloadInterval < 0 || c.StatusInterval < 0 {
		return fmt.Errorf("durations cannot be negative")
	}

	if err := c.Forward.TLS.Validate(); err != nil {
		return fmt.Errorf("forward.%w", err)
	}

	if c.NATS.Enabled() {
		if err := c.NATS.validate(); err != nil {
			return fmt.Errorf("nats.%w", err)
		}
	}

	return nil
}

func (n NATSConfig) validate() error {
	if strings.TrimSpace(n.Subject) == "" {
		return fmt.Errorf("subject is required when url is set")
	}
	if n.MaxReconnects < -1 {
		return fmt.Errorf("maxReconnects must be -1 (unlimited) or more, got %d", n.MaxReconnects)
	}
	if n.ConnectTimeout <= 0 {
		return fmt.Errorf("connectTimeout must be positive")
	}
	if n.ReconnectWait < 0 || n.PingInterval < 0 || n.DrainTimeout < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	if (n.User == "") != (n.Password == "") {
		return fmt.Errorf("user and password must be set together")
	}
	if n.User != "" && n.Token != "" {
		return fmt.Errorf("use either user/password or token, not both")
	}
	return nil
}

// Duration is a time.Duration that decodes from strings like "20s".
// Bare numbers are read as seconds.
type Duration time.Duration

// Duration converts to time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalJSON encodes the duration in its string form
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON accepts "1m30s" style strings or a number of seconds
func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

// MarshalYAML encodes the duration in its string form
func (d Duration) MarshalYAML() (any, error) {
	return d.String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a scalar, got %s", value.Tag)
	}
	if value.Tag == "!!int" || value.Tag == "!!float" {
		secs, err := strconv.ParseFloat(value.Value, 64)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", value.Value, err)
		}
		return d.set(secs)
	}
	return d.set(value.Value)
}

func (d *Duration) set(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(v * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}
