// Package changedetector implements ChangeDetector (§4.6): a cheap,
// non-recursive directory poll-diff against Store that decides which
// paths to hand to Scanner without re-walking and re-hashing an entire
// tree.
package changedetector

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/barrulus/clepho/internal/store"
)

// Result is the {new, modified} path partition §4.6 names. Deletion is
// intentionally not reported: the directory may be a temporarily
// unmounted filesystem, so an absent path is not evidence of deletion.
type Result struct {
	New      []string
	Modified []string
}

// Detector checks a single directory's entries against Store.
type Detector struct {
	store           store.PhotoReader
	imageExtensions map[string]bool
}

// New returns a Detector filtering to the given extensions (case-
// insensitive, leading dot, e.g. ".jpg").
func New(st store.PhotoReader, imageExtensions []string) *Detector {
	exts := make(map[string]bool, len(imageExtensions))
	for _, e := range imageExtensions {
		exts[strings.ToLower(e)] = true
	}
	return &Detector{store: st, imageExtensions: exts}
}

// Check lists directory non-recursively and classifies each matching
// entry as NEW (no Store row at this path) or MODIFIED (fs mtime newer
// than the stored mtime). Unchanged entries and non-image/dot entries
// are omitted from the result.
func (d *Detector) Check(ctx context.Context, directory string) (Result, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return Result{}, fmt.Errorf("changedetector: read dir %s: %w", directory, err)
	}

	var res Result
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if !d.imageExtensions[strings.ToLower(filepath.Ext(name))] {
			continue
		}

		path := filepath.Join(directory, name)
		info, err := entry.Info()
		if err != nil {
			continue // transient stat error; next poll will pick it up
		}

		existing, err := d.store.GetByPath(ctx, path)
		switch {
		case err == store.ErrNotFound:
			res.New = append(res.New, path)
		case err != nil:
			return Result{}, fmt.Errorf("changedetector: lookup %s: %w", path, err)
		case info.ModTime().Unix() > existing.ModifiedAt.Unix():
			res.Modified = append(res.Modified, path)
		}
	}
	return res, nil
}
