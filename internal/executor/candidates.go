package executor

import (
	"context"
	"fmt"

	"github.com/barrulus/clepho/internal/store"
)

// candidates resolves a task's target scope into the concrete photo rows
// it should operate on: every photo under TargetPath, restricted to
// PhotoIDs when that optional subset is set (§3: "nil means all
// eligible").
func (e *Executor) candidates(ctx context.Context, task store.ScheduledTask) ([]store.Photo, error) {
	photos, err := e.store.ListByDirectory(ctx, task.TargetPath)
	if err != nil {
		return nil, fmt.Errorf("executor: list photos under %s: %w", task.TargetPath, err)
	}
	if len(task.PhotoIDs) == 0 {
		return photos, nil
	}

	want := make(map[int64]bool, len(task.PhotoIDs))
	for _, id := range task.PhotoIDs {
		want[id] = true
	}
	var filtered []store.Photo
	for _, p := range photos {
		if want[p.ID] {
			filtered = append(filtered, p)
		}
	}
	return filtered, nil
}
