package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/spf13/pflag"
)

// defaultConfigName is looked up beside the executable, then in the working directory
const defaultConfigName = "appconfig.json"

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
	PrintSchema     bool
}

// envFunc reads one environment variable
type envFunc func(string) string

func parseFlags(args []string, getenv envFunc, usageOut io.Writer) (*CLIConfig, error) {
	cfg := &CLIConfig{}
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)
	fs.SetOutput(usageOut)

	// Define flags with environment variable fallback
	fs.StringVarP(&cfg.ConfigPath, "config", "c",
		getEnv(getenv, "SENSORRELAY_CONFIG", defaultConfigPath()),
		"Path to configuration file (env: SENSORRELAY_CONFIG)")

	fs.StringVar(&cfg.LogLevel, "log-level",
		getEnv(getenv, "SENSORRELAY_LOG_LEVEL", "info"),
		"Log level: debug, info, warn, error (env: SENSORRELAY_LOG_LEVEL)")

	fs.StringVar(&cfg.LogFormat, "log-format",
		getEnv(getenv, "SENSORRELAY_LOG_FORMAT", "text"),
		"Log format: json, text (env: SENSORRELAY_LOG_FORMAT)")

	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration(getenv, "SENSORRELAY_SHUTDOWN_TIMEOUT", 10*time.Second),
		"Time allowed for in-flight forwards on shutdown (env: SENSORRELAY_SHUTDOWN_TIMEOUT)")

	fs.BoolVarP(&cfg.ShowVersion, "version", "v", false, "Show version information")
	fs.BoolVarP(&cfg.ShowHelp, "help", "h", false, "Show help information")
	fs.BoolVar(&cfg.Validate, "validate",
		getEnvBool(getenv, "SENSORRELAY_VALIDATE", false),
		"Validate configuration and exit")
	fs.BoolVar(&cfg.PrintSchema, "print-schema", false, "Print the configuration JSON Schema and exit")

	fs.Usage = func() {
		printDetailedHelp(usageOut, fs)
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	if cfg.ShowHelp {
		fs.Usage()
	}

	return cfg, nil
}

func validateFlags(cfg *CLIConfig) error {
	// Skip validation for special flags
	if cfg.ShowVersion || cfg.ShowHelp || cfg.PrintSchema {
		return nil
	}

	if cfg.ConfigPath == "" {
		return fmt.Errorf("config path is empty")
	}

	validLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLevels, cfg.LogLevel) {
		return fmt.Errorf("invalid log level: %s", cfg.LogLevel)
	}

	validFormats := []string{"json", "text"}
	if !slices.Contains(validFormats, cfg.LogFormat) {
		return fmt.Errorf("invalid log format: %s", cfg.LogFormat)
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}

	return nil
}

// defaultConfigPath prefers appconfig.json next to the binary
func defaultConfigPath() string {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), defaultConfigName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return defaultConfigName
}

func printDetailedHelp(w io.Writer, fs *pflag.FlagSet) {
	_, _ = fmt.Fprintf(w, `%s - relay 13-digit codes from TCP sensors to an HTTP endpoint

Usage: %s [options]

Options:
`, appName, appName)
	_, _ = fmt.Fprint(w, fs.FlagUsages())
	_, _ = fmt.Fprintf(w, `
Examples:
  # Run with appconfig.json beside the binary
  %[1]s

  # Run with a YAML config and debug logging
  %[1]s --config=/etc/sensorrelay/relay.yaml --log-level=debug

  # Validate configuration only
  %[1]s --validate

  # Reload the sink URL without restarting
  kill -HUP $(pidof %[1]s)

Version: %[2]s
Build: %[3]s
`, appName, Version, BuildTime)
}

// Environment variable helper functions
func getEnv(getenv envFunc, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(getenv envFunc, key string, defaultValue bool) bool {
	if value := getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(getenv envFunc, key string, defaultValue time.Duration) time.Duration {
	if value := getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
