// Package daemonrun hosts the datahandler daemon process: logging to a
// per-run file, telemetry, component wiring, and the signal-driven lifetime.
package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"datahandler/internal/bootstrap"
	"datahandler/internal/config"
	"datahandler/internal/daemon"
	"datahandler/internal/logging"
	"datahandler/internal/telemetry"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the daemon and blocks until cmdCtx ends or the process is
// signalled.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("datahandler-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:            level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Development:      opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update datahandler.log link: %v\n", err)
	}

	pidPath := filepath.Join(cfg.Paths.StateDir, "datahandler.pid")
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	shutdownTelemetry, err := telemetry.Init(signalCtx, cfg.Telemetry, "daemon", logger)
	if err != nil {
		logger.Warn("telemetry disabled",
			logging.Error(err),
			logging.String(logging.FieldEventType, "telemetry_init_failed"),
			logging.String(logging.FieldImpact, "spans are not exported"),
		)
		shutdownTelemetry = func(context.Context) {}
	}
	defer func() {
		flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer flushCancel()
		shutdownTelemetry(flushCtx)
	}()

	components, err := bootstrap.Open(signalCtx, cfg, logger, bootstrap.Options{})
	if err != nil {
		logger.Error("open components", logging.Error(err))
		return err
	}
	logComponentSnapshot(logger, cfg, components)

	d, err := daemon.New(cfg, components, logger)
	if err != nil {
		_ = components.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check for another running daemon and the store configuration"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("datahandler daemon shutting down")
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "datahandler.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logComponentSnapshot(logger *slog.Logger, cfg *config.Config, c *bootstrap.Components) {
	if logger == nil || cfg == nil || c == nil {
		return
	}
	logger.Info("component snapshot",
		logging.String(logging.FieldEventType, "component_snapshot"),
		logging.String("store_backend", c.Store.Backend()),
		logging.String("queue_backend", cfg.Queue.Backend),
		logging.Any("drivers", c.Drivers.Names()),
		logging.Int("variables", len(cfg.Variables)),
		logging.Int("interval_seconds", cfg.Scheduler.IntervalSeconds),
		logging.Bool("api_enabled", cfg.Daemon.APIBind != ""),
		logging.Bool("telemetry_enabled", telemetry.Enabled(cfg.Telemetry)),
	)
}
