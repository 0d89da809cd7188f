package trash

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
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

func insertPhoto(t *testing.T, st *sqlite.Store, path string, size int64) int64 {
	t.Helper()
	id, err := st.UpsertPhoto(context.Background(), store.UpsertPhotoParams{
		Path:       path,
		SizeBytes:  size,
		ModifiedAt: 1,
		ScannedAt:  1,
	})
	require.NoError(t, err)
	return id
}

func TestTrashAndRestore(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	srcDir := t.TempDir()
	trashDir := filepath.Join(t.TempDir(), "trash")
	path := filepath.Join(srcDir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	id := insertPhoto(t, st, path, 4)

	m := New(st, trashDir, 30, 0)
	require.NoError(t, m.Trash(ctx, id))

	photo, err := st.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, photo.IsTrashed())
	assert.Equal(t, path, photo.OriginalPath)
	assert.True(t, filepath.Dir(photo.Path) == trashDir)
	assert.FileExists(t, photo.Path)
	assert.NoFileExists(t, path)

	require.NoError(t, m.Restore(ctx, id))

	photo, err = st.GetByID(ctx, id)
	require.NoError(t, err)
	assert.False(t, photo.IsTrashed())
	assert.Equal(t, path, photo.Path)
	assert.FileExists(t, path)
}

func TestRestoreConflict(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	srcDir := t.TempDir()
	trashDir := filepath.Join(t.TempDir(), "trash")
	path := filepath.Join(srcDir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	id := insertPhoto(t, st, path, 4)

	m := New(st, trashDir, 30, 0)
	require.NoError(t, m.Trash(ctx, id))

	// Recreate a file at the original path before restoring.
	require.NoError(t, os.WriteFile(path, []byte("new"), 0o644))

	err := m.Restore(ctx, id)
	assert.True(t, errors.Is(err, ErrRestoreConflict))
}

func TestPurgeDeletesFileAndRow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	id := insertPhoto(t, st, path, 4)

	m := New(st, filepath.Join(dir, "trash"), 30, 0)
	require.NoError(t, m.Purge(ctx, id))

	assert.NoFileExists(t, path)
	_, err := st.GetByID(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCleanupPurgesExpiredByAge(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	srcDir := t.TempDir()
	trashDir := filepath.Join(t.TempDir(), "trash")
	path := filepath.Join(srcDir, "old.jpg")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))
	id := insertPhoto(t, st, path, 4)

	m := New(st, trashDir, 1, 0) // 1 day max age
	require.NoError(t, m.Trash(ctx, id))

	future := time.Now().Add(48 * time.Hour).Unix()
	counts, err := m.Cleanup(ctx, future)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.ExpiredByAge)

	_, err = st.GetByID(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCleanupPurgesOldestFirstWhenOverSize(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	srcDir := t.TempDir()
	trashDir := filepath.Join(t.TempDir(), "trash")

	pathA := filepath.Join(srcDir, "a.jpg")
	require.NoError(t, os.WriteFile(pathA, make([]byte, 100), 0o644))
	idA := insertPhoto(t, st, pathA, 100)

	pathB := filepath.Join(srcDir, "b.jpg")
	require.NoError(t, os.WriteFile(pathB, make([]byte, 100), 0o644))
	idB := insertPhoto(t, st, pathB, 100)

	m := New(st, trashDir, 30, 150) // max 150 bytes total
	require.NoError(t, m.Trash(ctx, idA))
	require.NoError(t, m.Trash(ctx, idB))

	counts, err := m.Cleanup(ctx, time.Now().Unix())
	require.NoError(t, err)
	assert.Equal(t, 1, counts.ExpiredBySize)

	_, errA := st.GetByID(ctx, idA)
	_, errB := st.GetByID(ctx, idB)
	// Exactly one of the two (the one trashed first / oldest) should be gone.
	goneCount := 0
	if errors.Is(errA, store.ErrNotFound) {
		goneCount++
	}
	if errors.Is(errB, store.ErrNotFound) {
		goneCount++
	}
	assert.Equal(t, 1, goneCount)
}
