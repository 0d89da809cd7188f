package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrulus/clepho/internal/store"
	"github.com/barrulus/clepho/internal/store/sqlite"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	st, err := sqlite.Open(dbPath, logger)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

type recordingRunner struct {
	mu  sync.Mutex
	ran []store.ScheduledTask
	err error
}

func (r *recordingRunner) Run(ctx context.Context, task store.ScheduledTask) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ran = append(r.ran, task)
	return r.err
}

func (r *recordingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ran)
}

func TestCreateTaskStartsPending(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	s := New(st, &recordingRunner{}, nil, time.Second)

	id, err := s.CreateTask(ctx, store.ScheduledTask{
		Kind:        store.TaskScan,
		TargetPath:  "/photos",
		ScheduledAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	task, err := st.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, task.Status)
}

func TestTickClaimsAndCompletesTask(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	runner := &recordingRunner{}
	s := New(st, runner, nil, time.Second)

	id, err := s.CreateTask(ctx, store.ScheduledTask{
		Kind:        store.TaskScan,
		TargetPath:  "/photos",
		ScheduledAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	s.tick(ctx)

	assert.Equal(t, 1, runner.count())
	task, err := st.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, task.Status)
}

func TestTickMarksFailedOnRunnerError(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	runner := &recordingRunner{err: errors.New("boom")}
	s := New(st, runner, nil, time.Second)

	id, err := s.CreateTask(ctx, store.ScheduledTask{
		Kind:        store.TaskScan,
		TargetPath:  "/photos",
		ScheduledAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	s.tick(ctx)

	task, err := st.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, task.Status)
	assert.Equal(t, "boom", task.ErrorMessage)
}

func TestListOverdueAndCancel(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	s := New(st, &recordingRunner{}, nil, time.Second)

	id, err := s.CreateTask(ctx, store.ScheduledTask{
		Kind:        store.TaskScan,
		TargetPath:  "/photos",
		ScheduledAt: time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	overdue, err := s.ListOverdue(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, id, overdue[0].ID)

	require.NoError(t, s.Cancel(ctx, id))
	task, err := st.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, task.Status)
}
