// Package scheduler implements the poll-driven durable task queue's
// process-facing API (§4.9): creating/cancelling tasks, listing overdue
// ones at startup, and a poll loop that claims due work and hands it to
// a Runner. The atomic claim and hours-of-operation gating themselves
// live in the Store backends (sqlite's single-connection transaction,
// postgres's `FOR UPDATE SKIP LOCKED`); this package is the thin
// coordination layer both the interactive process and the daemon share.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/barrulus/clepho/internal/store"
)

// Runner executes a claimed task. TaskExecutor (internal/executor)
// implements this; Scheduler only needs to dispatch and record the
// outcome via Store.SetStatus.
type Runner interface {
	Run(ctx context.Context, task store.ScheduledTask) error
}

// Scheduler polls Store for due tasks and hands them to a Runner.
type Scheduler struct {
	store        store.Store
	runner       Runner
	logger       *slog.Logger
	pollInterval time.Duration
	staleAfter   time.Duration
}

// New returns a Scheduler polling every pollInterval (the interactive
// process uses ~1s, the daemon config.Schedule.DaemonIntervalSeconds,
// per §4.9).
func New(st store.Store, runner Runner, logger *slog.Logger, pollInterval time.Duration) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		store:        st,
		runner:       runner,
		logger:       logger,
		pollInterval: pollInterval,
		staleAfter:   10 * time.Minute,
	}
}

// SetStaleAfter overrides how long a `running` row may sit unclaimed by a
// live executor before ReapStaleRunning fails it (default 10 minutes).
func (s *Scheduler) SetStaleAfter(d time.Duration) {
	s.staleAfter = d
}

// SetPollInterval overrides the poll period passed to New, letting the
// daemon apply config.Schedule.DaemonIntervalSeconds (or its --interval
// flag) after app.New has already built a Scheduler tuned for the
// interactive process's 1s default.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// CreateTask persists a new ScheduledTask in pending status.
func (s *Scheduler) CreateTask(ctx context.Context, t store.ScheduledTask) (int64, error) {
	t.Status = store.StatusPending
	id, err := s.store.CreateTask(ctx, t)
	if err != nil {
		return 0, fmt.Errorf("scheduler: create task: %w", err)
	}
	return id, nil
}

// Cancel transitions a pending task directly to cancelled (§4.9: "user
// cancel" is the only edge out of pending besides claim).
func (s *Scheduler) Cancel(ctx context.Context, id int64) error {
	if err := s.store.Cancel(ctx, id); err != nil {
		return fmt.Errorf("scheduler: cancel %d: %w", id, err)
	}
	return nil
}

// ListOverdue returns pending tasks whose scheduled_at is in the past,
// for the UI's startup prompt (run now / cancel / dismiss).
func (s *Scheduler) ListOverdue(ctx context.Context, now time.Time) ([]store.ScheduledTask, error) {
	tasks, err := s.store.ListOverdue(ctx, now.Unix())
	if err != nil {
		return nil, fmt.Errorf("scheduler: list overdue: %w", err)
	}
	return tasks, nil
}

// ReapStale fails any `running` row whose started_at predates
// now-StaleAfter, recovering from an executor that crashed without a
// graceful shutdown. Called once at process startup (§4.9 Failure
// semantics).
func (s *Scheduler) ReapStale(ctx context.Context, now time.Time) (int, error) {
	n, err := s.store.ReapStaleRunning(ctx, now.Unix(), int64(s.staleAfter.Seconds()))
	if err != nil {
		return 0, fmt.Errorf("scheduler: reap stale: %w", err)
	}
	if n > 0 {
		s.logger.Warn("reaped stale running tasks", "count", n)
	}
	return n, nil
}

// Run polls Store for due tasks until ctx is cancelled, claiming and
// dispatching at most one per tick (§4.9: claim_due returns at most one
// task per call, so each polling caller naturally serializes on the
// Store's atomic claim).
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	task, err := s.store.ClaimDue(ctx, time.Now().Unix())
	if err != nil {
		s.logger.Error("claim due task failed", "error", err)
		return
	}
	if task == nil {
		return
	}

	s.logger.Info("claimed task", "id", task.ID, "kind", task.Kind, "target", task.TargetPath)

	runErr := s.runner.Run(ctx, *task)

	status := store.StatusCompleted
	errMsg := ""
	if runErr != nil {
		if ctx.Err() != nil {
			status = store.StatusCancelled
		} else {
			status = store.StatusFailed
			errMsg = runErr.Error()
		}
	}
	if err := s.store.SetStatus(ctx, task.ID, status, errMsg); err != nil {
		s.logger.Error("set task status failed", "id", task.ID, "error", err)
	}
}
