package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/c360/sensorrelay/errors"
)

// DefaultEnvPrefix prefixes every environment override
const DefaultEnvPrefix = "SENSORRELAY"

// Loader builds a Config from defaults, a document and environment overrides,
// in that order.
type Loader struct {
	lookupEnv func(string) (string, bool)
}

// NewLoader creates a loader reading overrides from the process environment
func NewLoader() *Loader {
	return &Loader{
		lookupEnv: os.LookupEnv,
	}
}

// WithLookupEnv replaces the environment lookup, mainly for tests
func (l *Loader) WithLookupEnv(fn func(string) (string, bool)) *Loader {
	if fn != nil {
		l.lookupEnv = fn
	}
	return l
}

// LoadFile reads, decodes and validates the document at path.
// A missing or unreadable file is fatal; a malformed or invalid document is invalid.
func (l *Loader) LoadFile(path string) (*Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
			"Loader", "LoadFile", "detect format")
	}

	data, err := safeReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			err = fmt.Errorf("%w: %w", errors.ErrConfigNotFound, err)
		}
		return nil, errors.WrapFatal(err, "Loader", "LoadFile", "read "+path)
	}

	return l.Parse(data, format)
}

// Parse decodes data over the defaults, applies environment overrides and validates.
func (l *Loader) Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
				"Loader", "Parse", "decode yaml")
		}
	default:
		plain := jsonc.ToJSON(data)
		if err := validateJSONDepth(plain); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
				"Loader", "Parse", "check json depth")
		}
		dec := json.NewDecoder(bytes.NewReader(plain))
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrParsingFailed, err),
				"Loader", "Parse", "decode json")
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) error {
	overrides := []struct {
		suffix string
		target *string
	}{
		{"_BASE_URL", &cfg.BaseURL},
		{"_API_URL", &cfg.APIURL},
		{"_NATS_URL", &cfg.NATS.URL},
		{"_NATS_SUBJECT", &cfg.NATS.Subject},
		{"_NATS_USER", &cfg.NATS.User},
		{"_NATS_PASSWORD", &cfg.NATS.Password},
		{"_NATS_TOKEN", &cfg.NATS.Token},
	}

	for _, o := range overrides {
		key := DefaultEnvPrefix + o.suffix
		val, ok := l.lookupEnv(key)
		if !ok || val == "" {
			continue
		}
		if err := validateEnvVar(key, val); err != nil {
			return errors.WrapInvalid(fmt.Errorf("%w: %w", errors.ErrInvalidConfig, err),
				"Loader", "applyEnvOverrides", "validate "+key)
		}
		*o.target = val
	}
	return nil
}
