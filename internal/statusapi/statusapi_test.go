package statusapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrulus/clepho/internal/executor"
	"github.com/barrulus/clepho/internal/scheduler"
	"github.com/barrulus/clepho/internal/store"
	"github.com/barrulus/clepho/internal/store/sqlite"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, task store.ScheduledTask) error { return nil }

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := sqlite.Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestHandleHealthz(t *testing.T) {
	reg := executor.NewRegistry()
	st := newTestStore(t)
	sched := scheduler.New(st, noopRunner{}, nil, time.Second)

	srv := New(0, reg, sched, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleTasksReturnsEmptyListWhenIdle(t *testing.T) {
	reg := executor.NewRegistry()
	st := newTestStore(t)
	sched := scheduler.New(st, noopRunner{}, nil, time.Second)

	srv := New(0, reg, sched, nil)
	req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())
}

func TestHandleOverdueListsPastDueTasks(t *testing.T) {
	reg := executor.NewRegistry()
	st := newTestStore(t)
	sched := scheduler.New(st, noopRunner{}, nil, time.Second)

	_, err := sched.CreateTask(context.Background(), store.ScheduledTask{
		Kind:        store.TaskScan,
		TargetPath:  "/photos",
		ScheduledAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	srv := New(0, reg, sched, nil)
	req := httptest.NewRequest(http.MethodGet, "/overdue", nil)
	rec := httptest.NewRecorder()
	srv.httpServer.Handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var tasks []store.ScheduledTask
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 1)
}
