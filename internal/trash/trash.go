// Package trash implements TrashManager (§4.8): move-to-trash/restore/
// purge and the age/size-bounded cleanup sweep, keeping the on-disk file
// tree and the Photo row's trash fields (path, original_path, trashed_at)
// in lockstep per §3's trashed invariant.
package trash

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/barrulus/clepho/internal/store"
)

// ErrRestoreConflict is returned by Restore when a file already exists at
// the photo's original_path (§4.8: restore fails rather than overwrite).
var ErrRestoreConflict = errors.New("trash: restore conflict")

// CleanupCounts tallies what a Cleanup sweep removed.
type CleanupCounts struct {
	ExpiredByAge  int
	ExpiredBySize int
}

// Manager trashes, restores, and purges photos under Root, and enforces
// MaxAgeDays/MaxSizeBytes retention.
type Manager struct {
	store       store.Store
	root        string
	maxAgeDays  int
	maxSizeByte int64
}

// New returns a Manager rooted at root with the given retention policy.
func New(st store.Store, root string, maxAgeDays int, maxSizeByte int64) *Manager {
	return &Manager{store: st, root: root, maxAgeDays: maxAgeDays, maxSizeByte: maxSizeByte}
}

// Trash moves the photo's file from its current path to
// "<root>/<token>_<basename>", an 8-char token prefixing the original
// basename to avoid collisions (§4.8), and updates the Photo row. Moves
// across filesystems fall back to copy+delete.
func (m *Manager) Trash(ctx context.Context, photoID int64) error {
	photo, err := m.store.GetByID(ctx, photoID)
	if err != nil {
		return fmt.Errorf("trash: get photo %d: %w", photoID, err)
	}
	if photo.IsTrashed() {
		return nil
	}

	if err := os.MkdirAll(m.root, 0o755); err != nil {
		return fmt.Errorf("trash: mkdir %s: %w", m.root, err)
	}

	token := uuid.NewString()[:8]
	dst := filepath.Join(m.root, token+"_"+filepath.Base(photo.Path))

	if err := moveFile(photo.Path, dst); err != nil {
		return fmt.Errorf("trash: move %s -> %s: %w", photo.Path, dst, err)
	}

	trashedAt := time.Now().Unix()
	if err := m.store.UpdateTrashFields(ctx, photoID, dst, photo.Path, &trashedAt); err != nil {
		return fmt.Errorf("trash: update fields for %d: %w", photoID, err)
	}
	return nil
}

// Restore moves a trashed photo's file back to its original_path and
// clears the trash fields. Fails RestoreConflict if a file already
// occupies original_path (§4.8).
func (m *Manager) Restore(ctx context.Context, photoID int64) error {
	photo, err := m.store.GetByID(ctx, photoID)
	if err != nil {
		return fmt.Errorf("trash: get photo %d: %w", photoID, err)
	}
	if !photo.IsTrashed() {
		return nil
	}

	if _, err := os.Stat(photo.OriginalPath); err == nil {
		return fmt.Errorf("%w: %s", ErrRestoreConflict, photo.OriginalPath)
	}

	if err := os.MkdirAll(filepath.Dir(photo.OriginalPath), 0o755); err != nil {
		return fmt.Errorf("trash: mkdir for restore: %w", err)
	}
	if err := moveFile(photo.Path, photo.OriginalPath); err != nil {
		return fmt.Errorf("trash: restore move %s -> %s: %w", photo.Path, photo.OriginalPath, err)
	}

	if err := m.store.UpdateTrashFields(ctx, photoID, photo.OriginalPath, "", nil); err != nil {
		return fmt.Errorf("trash: clear fields for %d: %w", photoID, err)
	}
	return nil
}

// Purge deletes a trashed photo's file from disk and its Photo row,
// cascading to Embedding/Face/FaceScan/PhotoSimilarity (§3 Ownership).
func (m *Manager) Purge(ctx context.Context, photoID int64) error {
	photo, err := m.store.GetByID(ctx, photoID)
	if err != nil {
		return fmt.Errorf("trash: get photo %d: %w", photoID, err)
	}
	if err := os.Remove(photo.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("trash: remove %s: %w", photo.Path, err)
	}
	if err := m.store.Delete(ctx, photoID); err != nil {
		return fmt.Errorf("trash: delete row %d: %w", photoID, err)
	}
	return nil
}

// Cleanup enumerates trashed photos and purges those older than
// MaxAgeDays, then, if the remaining trash still exceeds MaxSizeBytes,
// purges the oldest survivors until under the limit; a MaxSizeBytes of 0
// therefore empties the trash. Trash does not run Cleanup, and nothing
// runs it at startup; the `trash cleanup` command is its only caller.
func (m *Manager) Cleanup(ctx context.Context, now int64) (CleanupCounts, error) {
	trashed, err := m.listTrashed(ctx)
	if err != nil {
		return CleanupCounts{}, err
	}

	var counts CleanupCounts
	maxAgeSeconds := int64(m.maxAgeDays) * 24 * 60 * 60

	var survivors []store.Photo
	for _, p := range trashed {
		if p.TrashedAt != nil && p.TrashedAt.Unix()+maxAgeSeconds <= now {
			if err := m.Purge(ctx, p.ID); err != nil {
				return counts, err
			}
			counts.ExpiredByAge++
			continue
		}
		survivors = append(survivors, p)
	}

	if m.maxSizeByte < 0 {
		return counts, nil
	}

	var total int64
	for _, p := range survivors {
		total += p.SizeBytes
	}
	if total <= m.maxSizeByte {
		return counts, nil
	}

	sort.Slice(survivors, func(i, j int) bool {
		ti, tj := trashedAtOrZero(survivors[i]), trashedAtOrZero(survivors[j])
		return ti < tj
	})
	for _, p := range survivors {
		if total <= m.maxSizeByte {
			break
		}
		if err := m.Purge(ctx, p.ID); err != nil {
			return counts, err
		}
		total -= p.SizeBytes
		counts.ExpiredBySize++
	}
	return counts, nil
}

func trashedAtOrZero(p store.Photo) int64 {
	if p.TrashedAt == nil {
		return 0
	}
	return p.TrashedAt.Unix()
}

// listTrashed queries Store for the trash root's rows rather than reading
// the directory on disk, since Store has no direct "list trashed photos"
// query; ListByDirectory against the trash root returns exactly the rows whose
// path lives there, which is every trashed photo (§4.8 invariant).
func (m *Manager) listTrashed(ctx context.Context) ([]store.Photo, error) {
	photos, err := m.store.ListByDirectory(ctx, m.root)
	if err != nil {
		return nil, fmt.Errorf("trash: list trashed: %w", err)
	}
	var trashed []store.Photo
	for _, p := range photos {
		if p.IsTrashed() {
			trashed = append(trashed, p)
		}
	}
	return trashed, nil
}

// moveFile renames src to dst, falling back to copy+delete when the
// rename fails across filesystems (§4.8: "Cross-filesystem: copy+delete").
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("copy: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("close destination: %w", err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy: %w", err)
	}
	return nil
}
