// Package statusapi implements the daemon's optional local introspection
// server (§6.4, SPEC_FULL.md D.3): off by default, bound to localhost
// only, exposing /healthz, /tasks (the executor.Registry), and /overdue.
// Grounded on the teacher's web.Server (internal/web/server.go) for the
// chi middleware stack and graceful-shutdown shape, trimmed to a
// read-only introspection surface since the UI itself is out of scope.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/barrulus/clepho/internal/executor"
	"github.com/barrulus/clepho/internal/scheduler"
)

// Server is the localhost-only status HTTP server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New builds a Server bound to 127.0.0.1:port, backed by reg for /tasks
// and sched for /overdue.
func New(port int, reg *executor.Registry, sched *scheduler.Scheduler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(10 * time.Second))

	r.Get("/healthz", handleHealthz)
	r.Get("/tasks", handleTasks(reg))
	r.Get("/overdue", handleOverdue(sched))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", port),
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// Start blocks serving until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("status API listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("statusapi: listen and serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

type runningTaskView struct {
	ID          int64  `json:"id"`
	Kind        string `json:"kind"`
	TargetPath  string `json:"target_path"`
	StartedAt   string `json:"started_at"`
}

func handleTasks(reg *executor.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		running := reg.List()
		views := make([]runningTaskView, len(running))
		for i, t := range running {
			views[i] = runningTaskView{
				ID:         t.Task.ID,
				Kind:       string(t.Task.Kind),
				TargetPath: t.Task.TargetPath,
				StartedAt:  t.StartedAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, views)
	}
}

func handleOverdue(sched *scheduler.Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tasks, err := sched.ListOverdue(r.Context(), time.Now())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, tasks)
	}
}
