package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/barrulus/clepho/internal/app"
	"github.com/barrulus/clepho/internal/config"
	"github.com/barrulus/clepho/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "clepho",
	Short: "A local-first photo library manager",
	Long: `Clepho scans a photo library into a local catalog, detects
duplicates and near-duplicates, manages a reversible trash, and
schedules background work such as AI description, embedding, and face
detection.

This binary is the core and its CLI surface; the interactive
browsing UI is a separate, out-of-scope front-end (see the headless
daemon at cmd/daemon for unattended scheduling).`,
}

// Execute runs the root command, printing any error to stderr and
// exiting non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initEnv)
}

func initEnv() {
	// .env file is optional, don't fail if not found.
	_ = godotenv.Load()
}

// loadConfig loads the effective configuration, the single entry point
// every subcommand uses before opening a Store.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// newLogger builds the interactive process's logger, writing to
// ~/.config/clepho/logs/ per §6.1. Every subcommand uses this instead of
// a nil logger so CLI runs leave the same audit trail the foreground UI
// would. The returned file (if any) should be closed by the caller once
// the command returns.
func newLogger() (*slog.Logger, *os.File, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return logging.New(logging.Options{Level: slog.LevelInfo})
	}
	return logging.New(logging.Options{
		Dir:   filepath.Join(home, ".config", "clepho", "logs"),
		Level: slog.LevelInfo,
	})
}

// openApp loads config, builds the interactive logger, and wires an
// app.App, the sequence every subcommand needs before touching Store.
// Returns a closer that shuts down both the app's Store and the log file.
func openApp(ctx context.Context) (*app.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	logger, logFile, err := newLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("setting up logging: %w", err)
	}

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, nil, err
	}

	closer := func() {
		a.Close()
		if logFile != nil {
			logFile.Close()
		}
	}
	return a, closer, nil
}
