// Package app wires config, Store, the collaborator clients, and the
// executor/scheduler pair into one construction path shared by the
// interactive process (main.go) and the headless daemon
// (cmd/daemon/main.go), mirroring how the teacher's cmd/serve.go builds
// its pool + repositories + server once and hands them to both the CLI
// and the long-running process.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/barrulus/clepho/internal/config"
	"github.com/barrulus/clepho/internal/dup"
	"github.com/barrulus/clepho/internal/executor"
	"github.com/barrulus/clepho/internal/face"
	"github.com/barrulus/clepho/internal/llm"
	"github.com/barrulus/clepho/internal/scheduler"
	"github.com/barrulus/clepho/internal/store"
	"github.com/barrulus/clepho/internal/store/postgres"
	"github.com/barrulus/clepho/internal/store/sqlite"
	"github.com/barrulus/clepho/internal/thumbnail"
	"github.com/barrulus/clepho/internal/trash"
)

// App bundles everything a command or the daemon needs to run a task
// against the configured backend.
type App struct {
	Config    *config.Config
	Store     store.Store
	Thumbs    *thumbnail.Cache
	Executor  *executor.Executor
	Scheduler *scheduler.Scheduler
	Dup       *dup.Engine
	Trash     *trash.Manager
	Logger    *slog.Logger
}

// New opens the configured Store backend, builds the LLM and face-detector
// collaborator clients (best-effort: a misconfigured or absent collaborator
// only disables the task kinds that need it, per §6.5), and assembles the
// Executor/Scheduler pair.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	thumbs := thumbnail.New(cfg.Thumbnail.Path, cfg.Thumbnail.Size)

	llmClient, err := llm.New(ctx, cfg)
	if err != nil {
		logger.Warn("LLM collaborator unavailable, describe/embed tasks will fail", "error", err)
		llmClient = nil
	}

	var detector face.Detector
	if cfg.LLM.Endpoint != "" {
		d, err := face.NewHTTPDetector(cfg.LLM.Endpoint)
		if err != nil {
			logger.Warn("face detector unavailable, face-detection tasks will fail", "error", err)
		} else {
			detector = d
		}
	}

	ex := executor.New(st, thumbs, llmClient, detector, logger, executor.Options{
		ScanWorkers:         cfg.Scanner.Workers,
		ImageExtensions:     cfg.Scanner.ImageExtensions,
		IncludeDotfiles:     cfg.Scanner.IncludeDotfiles,
		WriterBatchSize:     cfg.Scanner.WriterBatchSize,
		DefaultPrompt:       cfg.LLM.Prompt,
		FaceClusterDistance: 0.3,
	})

	sched := scheduler.New(st, ex, logger, time.Second)

	dupEngine := dup.New(st, dup.DefaultWeights, logger)
	trashMgr := trash.New(st, cfg.Trash.Path, cfg.Trash.MaxAgeDays, cfg.Trash.MaxSizeByte)

	return &App{
		Config:    cfg,
		Store:     st,
		Thumbs:    thumbs,
		Executor:  ex,
		Scheduler: sched,
		Dup:       dupEngine,
		Trash:     trashMgr,
		Logger:    logger,
	}, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Database.Backend {
	case "postgresql":
		st, err := postgres.Open(ctx, postgres.Config{
			URL:          cfg.Database.PostgreSQLURL,
			MaxOpenConns: cfg.Database.PoolSize,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("app: open postgres store: %w", err)
		}
		return st, nil
	case "sqlite", "":
		st, err := sqlite.Open(cfg.Database.SQLitePath, logger)
		if err != nil {
			return nil, fmt.Errorf("app: open sqlite store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("app: unknown database backend %q", cfg.Database.Backend)
	}
}

// Close releases the Store's connection.
func (a *App) Close() error {
	return a.Store.Close()
}
