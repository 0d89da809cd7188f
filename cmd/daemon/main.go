// Command clepho-daemon is the headless half of the two-binary deployment
// named in §6.4: a scheduler loop only, sharing config and Store with the
// interactive process but never instantiating the (out-of-scope) TUI.
// Flags mirror spec.md §6.4: --once for a single poll, --interval to
// override the configured daemon poll period, --config to point at a
// non-default config.toml.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/barrulus/clepho/internal/app"
	"github.com/barrulus/clepho/internal/config"
	"github.com/barrulus/clepho/internal/logging"
	"github.com/barrulus/clepho/internal/statusapi"
	"github.com/barrulus/clepho/internal/store"
)

func main() {
	var (
		once       bool
		intervalS  int
		configPath string
		statusPort int
	)
	flag.BoolVar(&once, "once", false, "claim and run at most one due task, then exit")
	flag.IntVar(&intervalS, "interval", 0, "poll interval in seconds (0 = use schedule.daemon_interval_seconds from config)")
	flag.StringVar(&configPath, "config", "", "path to config.toml (overrides CLEPHO_CONFIG)")
	flag.IntVar(&statusPort, "status-port", 0, "bind the local status API to 127.0.0.1:PORT (0 = disabled)")
	flag.Parse()

	if configPath != "" {
		os.Setenv("CLEPHO_CONFIG", configPath)
	}

	logger, logFile, err := logging.New(logging.Options{Level: slog.LevelInfo})
	if err != nil {
		fmt.Fprintln(os.Stderr, "clepho-daemon: logging setup:", err)
		os.Exit(1)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	if err := run(once, intervalS, statusPort, logger); err != nil {
		logger.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func run(once bool, intervalS, statusPort int, logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("received shutdown signal")
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("starting app: %w", err)
	}
	defer a.Close()

	if n, err := a.Scheduler.ReapStale(ctx, time.Now()); err != nil {
		logger.Warn("reap stale running tasks failed", "error", err)
	} else if n > 0 {
		logger.Info("reaped stale running tasks", "count", n)
	}

	interval := time.Duration(cfg.Schedule.DaemonIntervalSeconds) * time.Second
	if intervalS > 0 {
		interval = time.Duration(intervalS) * time.Second
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	a.Scheduler.SetPollInterval(interval)

	if statusPort > 0 {
		srv := statusapi.New(statusPort, a.Executor.Registry, a.Scheduler, logger)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("status API stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	if once {
		task, err := a.Store.ClaimDue(ctx, time.Now().Unix())
		if err != nil {
			return fmt.Errorf("claim due: %w", err)
		}
		if task == nil {
			logger.Info("no due task found")
			return nil
		}
		logger.Info("running claimed task", "id", task.ID, "kind", task.Kind)
		runErr := a.Executor.Run(ctx, *task)
		status := store.StatusCompleted
		errMsg := ""
		if runErr != nil {
			status = store.StatusFailed
			errMsg = runErr.Error()
		}
		if err := a.Store.SetStatus(ctx, task.ID, status, errMsg); err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		return runErr
	}

	logger.Info("daemon started", "poll_interval", interval)
	a.Scheduler.Run(ctx)
	logger.Info("daemon stopped")
	return nil
}
