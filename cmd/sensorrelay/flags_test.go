package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(vars map[string]string) envFunc {
	return func(key string) string { return vars[key] }
}

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil, envMap(nil), &bytes.Buffer{})
	require.NoError(t, err)

	assert.Contains(t, cfg.ConfigPath, defaultConfigName)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Validate)
	assert.NoError(t, validateFlags(cfg))
}

func TestParseFlags_EnvFallback(t *testing.T) {
	env := envMap(map[string]string{
		"SENSORRELAY_CONFIG":           "/etc/relay.yaml",
		"SENSORRELAY_LOG_LEVEL":        "debug",
		"SENSORRELAY_LOG_FORMAT":       "json",
		"SENSORRELAY_SHUTDOWN_TIMEOUT": "3s",
		"SENSORRELAY_VALIDATE":         "true",
	})

	cfg, err := parseFlags(nil, env, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "/etc/relay.yaml", cfg.ConfigPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.Validate)
}

func TestParseFlags_FlagsBeatEnv(t *testing.T) {
	env := envMap(map[string]string{"SENSORRELAY_CONFIG": "/etc/relay.yaml"})

	cfg, err := parseFlags([]string{"-c", "local.json", "--log-level=warn"}, env, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, "local.json", cfg.ConfigPath)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestParseFlags_BadEnvIgnored(t *testing.T) {
	env := envMap(map[string]string{
		"SENSORRELAY_SHUTDOWN_TIMEOUT": "soon",
		"SENSORRELAY_VALIDATE":         "maybe",
	})

	cfg, err := parseFlags(nil, env, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.Validate)
}

func TestParseFlags_Errors(t *testing.T) {
	_, err := parseFlags([]string{"--no-such-flag"}, envMap(nil), &bytes.Buffer{})
	assert.Error(t, err)

	_, err = parseFlags([]string{"extra"}, envMap(nil), &bytes.Buffer{})
	assert.Error(t, err)
}

func TestParseFlags_Help(t *testing.T) {
	var out bytes.Buffer
	cfg, err := parseFlags([]string{"-h"}, envMap(nil), &out)
	require.NoError(t, err)

	assert.True(t, cfg.ShowHelp)
	assert.Contains(t, out.String(), "--shutdown-timeout")
	assert.Contains(t, out.String(), "kill -HUP")
}

func TestValidateFlags(t *testing.T) {
	valid := func() *CLIConfig {
		return &CLIConfig{
			ConfigPath:      "appconfig.json",
			LogLevel:        "info",
			LogFormat:       "text",
			ShutdownTimeout: time.Second,
		}
	}

	tests := []struct {
		name   string
		mutate func(*CLIConfig)
		ok     bool
	}{
		{"valid", func(*CLIConfig) {}, true},
		{"bad level", func(c *CLIConfig) { c.LogLevel = "verbose" }, false},
		{"bad format", func(c *CLIConfig) { c.LogFormat = "xml" }, false},
		{"empty path", func(c *CLIConfig) { c.ConfigPath = "" }, false},
		{"zero timeout", func(c *CLIConfig) { c.ShutdownTimeout = 0 }, false},
		{"version skips checks", func(c *CLIConfig) { c.ShowVersion = true; c.LogLevel = "x" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := validateFlags(cfg)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
