// Package executor implements TaskExecutor (§4.10 of SPEC_FULL.md): it
// dispatches a claimed store.ScheduledTask by Kind to the Scanner, LLM
// batch, or face-detection pipeline, tracks what's currently running in a
// RunningTasks registry the status API can poll, and recovers panics at
// the worker boundary per §7 ("Panics in worker threads are recovered at
// the worker boundary: the task transitions to failed").
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/barrulus/clepho/internal/face"
	"github.com/barrulus/clepho/internal/llm"
	"github.com/barrulus/clepho/internal/scanner"
	"github.com/barrulus/clepho/internal/store"
	"github.com/barrulus/clepho/internal/thumbnail"
)

// Options configures an Executor's resource usage, independent of any one
// task (per-task overrides, e.g. image extension set, come from Config
// at wiring time, not from the ScheduledTask row itself).
type Options struct {
	ScanWorkers         int // 0 means scanner.Options default (NumCPU)
	ImageExtensions     []string
	IncludeDotfiles     bool
	WriterBatchSize     int
	LLMConcurrency      int // 0 means 4
	DefaultPrompt       string
	FaceClusterDistance float64 // cosine distance threshold, 0 means 0.3

	// OnScanProgress, if non-nil, receives every scanner.ProgressEvent as a
	// scan task runs. The interactive CLI uses this to drive a progress
	// bar; the daemon leaves it nil and relies on the final slog summary.
	OnScanProgress func(scanner.ProgressEvent)
}

// RunningTask is a snapshot of one in-flight task, exposed read-only via
// Registry.List for the status API (SPEC_FULL.md D.3).
type RunningTask struct {
	Task      store.ScheduledTask
	StartedAt time.Time
}

// Registry tracks in-flight tasks and lets a caller request cancellation
// of one by id.
type Registry struct {
	mu      sync.Mutex
	entries map[int64]registryEntry
}

type registryEntry struct {
	task   store.ScheduledTask
	start  time.Time
	cancel context.CancelFunc
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[int64]registryEntry)}
}

func (r *Registry) add(task store.ScheduledTask, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[task.ID] = registryEntry{task: task, start: time.Now(), cancel: cancel}
}

func (r *Registry) remove(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, id)
}

// List returns a snapshot of every currently-running task.
func (r *Registry) List() []RunningTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunningTask, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, RunningTask{Task: e.task, StartedAt: e.start})
	}
	return out
}

// Cancel requests cancellation of a running task's context. Returns false
// if no task with that id is currently running.
func (r *Registry) Cancel(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok {
		return false
	}
	e.cancel()
	return true
}

// Executor implements scheduler.Runner, dispatching claimed tasks to the
// scan, LLM, and face-detection pipelines.
type Executor struct {
	store    store.Store
	thumbs   *thumbnail.Cache
	llm      llm.Client
	detector face.Detector
	cluster  *face.ClusterEngine
	logger   *slog.Logger
	opts     Options

	Registry *Registry
}

// New wires an Executor. llmClient and detector may be nil: tasks routed
// to them then fail with a clear error rather than panicking, matching
// §7's ExternalUnavailable policy for an unconfigured collaborator.
func New(st store.Store, thumbs *thumbnail.Cache, llmClient llm.Client, detector face.Detector, logger *slog.Logger, opts Options) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.LLMConcurrency <= 0 {
		opts.LLMConcurrency = 4
	}
	if opts.FaceClusterDistance <= 0 {
		opts.FaceClusterDistance = 0.3
	}
	return &Executor{
		store:    st,
		thumbs:   thumbs,
		llm:      llmClient,
		detector: detector,
		cluster:  face.New(st),
		logger:   logger,
		opts:     opts,
		Registry: NewRegistry(),
	}
}

// SetScanProgress installs (or clears, with nil) the scan progress sink
// used by subsequent Run calls. Not safe to call concurrently with a
// running scan task; the interactive CLI calls it once before Run.
func (e *Executor) SetScanProgress(fn func(scanner.ProgressEvent)) {
	e.opts.OnScanProgress = fn
}

// Run dispatches task to the pipeline matching its Kind, recovering any
// panic into an error so Scheduler.tick always observes a clean return.
func (e *Executor) Run(ctx context.Context, task store.ScheduledTask) (runErr error) {
	taskCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	e.Registry.add(task, cancel)
	defer e.Registry.remove(task.ID)

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked", "id", task.ID, "kind", task.Kind, "panic", r)
			runErr = fmt.Errorf("executor: task %d panicked: %v", task.ID, r)
		}
	}()

	switch task.Kind {
	case store.TaskScan:
		return e.runScan(taskCtx, task)
	case store.TaskLLMBatch:
		return e.runLLMBatch(taskCtx, task)
	case store.TaskFaceDetection:
		return e.runFaceDetection(taskCtx, task)
	default:
		return fmt.Errorf("executor: unknown task kind %q", task.Kind)
	}
}

func (e *Executor) runScan(ctx context.Context, task store.ScheduledTask) error {
	s := scanner.New(e.store, e.thumbs)
	events := s.Scan(ctx, task.TargetPath, scanner.Options{
		ImageExtensions: e.opts.ImageExtensions,
		IncludeDotfiles: e.opts.IncludeDotfiles,
		Workers:         e.opts.ScanWorkers,
		WriterBatchSize: e.opts.WriterBatchSize,
		Cancel:          ctx.Done(),
	})

	var final scanner.ProgressEvent
	for ev := range events {
		final = ev
		if e.opts.OnScanProgress != nil {
			e.opts.OnScanProgress(ev)
		}
		if ev.Kind == scanner.EventFile && ev.Outcome == scanner.OutcomeFailed {
			e.logger.Warn("scan: file failed", "path", ev.Path, "error", ev.Err)
		}
	}

	if final.Kind == scanner.EventAborted {
		return fmt.Errorf("executor: scan aborted: %w", final.Err)
	}
	if final.Kind == scanner.EventCancelled {
		return ctx.Err()
	}
	e.logger.Info("scan completed", "target", task.TargetPath,
		"new", final.Counts.New, "updated", final.Counts.Updated,
		"unchanged", final.Counts.Unchanged, "failed", final.Counts.Failed)
	return nil
}
