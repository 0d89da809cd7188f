package scanner

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
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
	"github.com/barrulus/clepho/internal/thumbnail"
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

func writeSolidJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 30, G: 90, B: 150, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

func drain(ch <-chan ProgressEvent) []ProgressEvent {
	var events []ProgressEvent
	for ev := range ch {
		events = append(events, ev)
	}
	return events
}

func TestScanIngestsNewPhotos(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeSolidJPEG(t, filepath.Join(dir, "a.jpg"), 40, 40)
	writeSolidJPEG(t, filepath.Join(dir, "b.jpg"), 40, 40)
	os.WriteFile(filepath.Join(dir, "note.txt"), []byte("not an image"), 0o644)

	thumbs := thumbnail.New(filepath.Join(t.TempDir(), "thumbs"), 32)
	sc := New(st, thumbs)

	events := drain(sc.Scan(context.Background(), dir, Options{
		ImageExtensions: []string{".jpg"},
		Workers:         2,
	}))

	require.NotEmpty(t, events)
	assert.Equal(t, EventStarted, events[0].Kind)
	last := events[len(events)-1]
	assert.Equal(t, EventCompleted, last.Kind)
	assert.Equal(t, 2, last.Counts.New)

	photo, err := st.GetByPath(context.Background(), filepath.Join(dir, "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, 40, photo.Width)
	assert.NotEmpty(t, photo.SHA256)
	assert.NotEmpty(t, photo.PerceptualHash)
	assert.True(t, thumbs.Has(photo.SHA256))
}

func TestScanSkipsUnchangedOnRescan(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeSolidJPEG(t, filepath.Join(dir, "a.jpg"), 20, 20)

	thumbs := thumbnail.New(filepath.Join(t.TempDir(), "thumbs"), 32)
	sc := New(st, thumbs)
	opts := Options{ImageExtensions: []string{".jpg"}, Workers: 1}

	first := drain(sc.Scan(context.Background(), dir, opts))
	assert.Equal(t, 1, first[len(first)-1].Counts.New)

	second := drain(sc.Scan(context.Background(), dir, opts))
	last := second[len(second)-1]
	assert.Equal(t, 0, last.Counts.New)
	assert.Equal(t, 1, last.Counts.Unchanged)
}

func TestScanDetectsModification(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	writeSolidJPEG(t, path, 20, 20)

	thumbs := thumbnail.New(filepath.Join(t.TempDir(), "thumbs"), 32)
	sc := New(st, thumbs)
	opts := Options{ImageExtensions: []string{".jpg"}, Workers: 1}
	drain(sc.Scan(context.Background(), dir, opts))

	// Force a distinguishable mtime before rewriting with new content.
	future := time.Now().Add(2 * time.Hour)
	writeSolidJPEG(t, path, 60, 60)
	require.NoError(t, os.Chtimes(path, future, future))

	second := drain(sc.Scan(context.Background(), dir, opts))
	last := second[len(second)-1]
	assert.Equal(t, 1, last.Counts.Updated)

	photo, err := st.GetByPath(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 60, photo.Width)
}

// failingUpsertStore wraps a real Store and fails every UpsertPhoto call,
// simulating the Store failure §4.5/§7 says must abort the whole scan.
type failingUpsertStore struct {
	store.Store
	err error
}

func (f *failingUpsertStore) UpsertPhoto(ctx context.Context, p store.UpsertPhotoParams) (int64, error) {
	return 0, f.err
}

func TestScanAbortsOnStoreFailure(t *testing.T) {
	st := newTestStore(t)
	failing := &failingUpsertStore{Store: st, err: assert.AnError}
	dir := t.TempDir()
	writeSolidJPEG(t, filepath.Join(dir, "a.jpg"), 20, 20)
	writeSolidJPEG(t, filepath.Join(dir, "b.jpg"), 20, 20)
	writeSolidJPEG(t, filepath.Join(dir, "c.jpg"), 20, 20)

	sc := New(failing, nil)
	events := drain(sc.Scan(context.Background(), dir, Options{
		ImageExtensions: []string{".jpg"},
		Workers:         1,
		WriterBatchSize: 1,
	}))

	require.NotEmpty(t, events)
	last := events[len(events)-1]
	require.Equal(t, EventAborted, last.Kind)
	require.Error(t, last.Err)
	assert.ErrorIs(t, last.Err, assert.AnError)

	// Every photo failed to write: none were skipped past the first
	// failure without being accounted for, and none were counted as new.
	assert.Equal(t, 0, last.Counts.New)
	assert.Equal(t, 3, last.Counts.Failed+last.Counts.Skipped)

	_, err := st.GetByPath(context.Background(), filepath.Join(dir, "a.jpg"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestScanIgnoresDotfilesByDefault(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	writeSolidJPEG(t, filepath.Join(dir, ".hidden.jpg"), 10, 10)

	sc := New(st, nil)
	events := drain(sc.Scan(context.Background(), dir, Options{
		ImageExtensions: []string{".jpg"},
		Workers:         1,
	}))
	last := events[len(events)-1]
	assert.Equal(t, 0, last.Counts.New)

	_, err := st.GetByPath(context.Background(), filepath.Join(dir, ".hidden.jpg"))
	assert.ErrorIs(t, err, store.ErrNotFound)
}
