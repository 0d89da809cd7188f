// Package logging configures the single slog.Logger shared by the
// interactive process and the headless daemon, the way onedrive-go
// threads one *slog.Logger through every store/sync constructor.
package logging

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Options controls where and how the logger writes.
type Options struct {
	// Dir is the directory logs are written under, e.g.
	// ~/.config/clepho/logs/ for the interactive process (§6.1). If empty,
	// logs go to stderr only (the daemon's default).
	Dir string
	// Level is the minimum level logged.
	Level slog.Level
	// JSON selects a structured handler instead of the default text one,
	// useful for the daemon when its output is consumed by log tooling.
	JSON bool
}

// New builds a *slog.Logger per Options. Callers are responsible for
// closing the returned file, if any.
func New(opts Options) (*slog.Logger, *os.File, error) {
	var w = os.Stderr
	var f *os.File

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, err
		}
		path := filepath.Join(opts.Dir, "clepho.log")
		opened, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		f = opened
		w = opened
	}

	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}

	return slog.New(handler), f, nil
}
