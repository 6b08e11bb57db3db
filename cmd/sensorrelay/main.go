// Package main implements the entry point for sensorrelay, which reads text lines
// from TCP sensors and forwards every 13-digit code to an HTTP endpoint.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/c360/sensorrelay/config"
	"github.com/c360/sensorrelay/forward"
	"github.com/c360/sensorrelay/health"
	"github.com/c360/sensorrelay/natsclient"
	"github.com/c360/sensorrelay/pkg/retry"
	"github.com/c360/sensorrelay/session"
	"github.com/c360/sensorrelay/supervisor"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "sensorrelay"
)

const (
	configStopTimeout = 5 * time.Second
	mirrorConnectWait = 10 * time.Second
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(os.Args[1:], os.Getenv, os.Stdout); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run(args []string, getenv envFunc, out io.Writer) error {
	cliCfg, err := parseFlags(args, getenv, out)
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		_, _ = fmt.Fprintf(out, "%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		return nil
	}
	if cliCfg.PrintSchema {
		_, _ = fmt.Fprintln(out, config.Schema())
		return nil
	}

	logger := setupLogger(out, cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	logger.Info("Starting sensor relay",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath)

	manager, err := config.NewManager(cliCfg.ConfigPath, config.NewLoader(), logger)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	cfg := manager.Current()
	if cliCfg.Validate {
		logger.Info("Configuration is valid",
			"sensors", len(cfg.Sensors), "sink", cfg.Sink().URL())
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, manager, logger, cliCfg.ShutdownTimeout)
}

// serve runs the relay until ctx is cancelled, then drains in-flight forwards
func serve(ctx context.Context, manager *config.Manager, logger *slog.Logger, shutdownTimeout time.Duration) error {
	cfg := manager.Current()

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer func() {
		_ = manager.Stop(configStopTimeout)
	}()
	go watchReloadSignal(ctx, manager, logger)

	client, err := forward.NewHTTPClient(cfg.Forward.TLS)
	if err != nil {
		return fmt.Errorf("create sink client: %w", err)
	}

	mirror := connectMirror(ctx, cfg.NATS, logger)

	deps := forward.Deps{
		Sender: forward.NewHTTPSender(manager, client),
		Logger: logger,
	}
	if mirror != nil {
		deps.Mirror = mirror
		deps.MirrorSubject = cfg.NATS.Subject
	}
	dispatcher, err := forward.NewDispatcher(deps)
	if err != nil {
		return fmt.Errorf("create dispatcher: %w", err)
	}

	sup, err := supervisor.New(supervisor.Deps{
		Sensors:        cfg.Sensors,
		Session:        session.ConfigFrom(cfg.Session),
		Dispatcher:     dispatcher,
		Logger:         logger,
		Health:         health.NewMonitor(),
		StatusInterval: cfg.StatusInterval.Duration(),
	})
	if err != nil {
		return fmt.Errorf("create supervisor: %w", err)
	}

	logger.Info("Sensor relay started",
		"sensors", len(cfg.Sensors),
		"sink", cfg.Sink().URL(),
		"mirror", mirror != nil)

	runErr := sup.Run(ctx)
	logger.Info("Received shutdown signal, draining forwards", "timeout", shutdownTimeout)

	if err := dispatcher.Shutdown(shutdownTimeout); err != nil {
		logger.Warn("Forwards still in flight at shutdown", "error", err)
	}
	if mirror != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := mirror.Close(closeCtx); err != nil {
			logger.Warn("NATS mirror close failed", "error", err)
		}
		cancel()
	}

	if runErr != nil {
		return fmt.Errorf("run sessions: %w", runErr)
	}
	logger.Info("Sensor relay shutdown complete", "config_reloads", manager.Reloads())
	return nil
}

// watchReloadSignal reloads the config file on SIGHUP
func watchReloadSignal(ctx context.Context, manager *config.Manager, logger *slog.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			logger.Info("Received SIGHUP, reloading configuration", "path", manager.Path())
			// Errors are logged by the manager
			_, _ = manager.Reload()
		}
	}
}

// connectMirror connects to NATS when configured. The mirror is optional, so a
// failure is logged and the relay runs without it.
func connectMirror(ctx context.Context, cfg config.NATSConfig, logger *slog.Logger) *natsclient.Client {
	if !cfg.Enabled() {
		return nil
	}

	client, err := natsclient.NewClient(cfg.URL, mirrorOptions(cfg, logger)...)
	if err != nil {
		logger.Warn("NATS mirror disabled", "error", err)
		return nil
	}

	logger.Info("Connecting to NATS mirror", "url", client.URL(), "subject", cfg.Subject)
	err = client.ConnectWithRetry(ctx, retry.DefaultConfig())
	if err == nil {
		waitCtx, cancel := context.WithTimeout(ctx, mirrorConnectWait)
		err = client.WaitForConnection(waitCtx)
		cancel()
	}
	if err != nil {
		logger.Warn("NATS mirror unavailable, continuing without it",
			"url", client.URL(),
			"attempts", client.Failures(),
			"retryable", !retry.IsNonRetryable(err),
			"error", err)
		_ = client.Close(context.Background())
		return nil
	}
	logger.Info("NATS mirror ready", "status", client.Status().String())
	return client
}

func mirrorOptions(cfg config.NATSConfig, logger *slog.Logger) []natsclient.ClientOption {
	opts := []natsclient.ClientOption{
		natsclient.WithLogger(logger),
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.MaxReconnects),
		natsclient.WithReconnectWait(cfg.ReconnectWait.Duration()),
		natsclient.WithPingInterval(cfg.PingInterval.Duration()),
		natsclient.WithTimeout(cfg.ConnectTimeout.Duration()),
		natsclient.WithDrainTimeout(cfg.DrainTimeout.Duration()),
	}
	if cfg.User != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.User, cfg.Password))
	}
	if cfg.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.Token))
	}
	return opts
}
