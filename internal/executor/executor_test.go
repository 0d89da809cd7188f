package executor

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

	"github.com/barrulus/clepho/internal/face"
	"github.com/barrulus/clepho/internal/llm"
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

func writeSolidJPEG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

type fakeLLM struct {
	description llm.Description
	embedding   []float32
	err         error
}

func (f *fakeLLM) Name() string { return "fake-model" }
func (f *fakeLLM) Usage() llm.Usage { return llm.Usage{} }
func (f *fakeLLM) Describe(ctx context.Context, imageData []byte, prompt string) (llm.Description, error) {
	if f.err != nil {
		return llm.Description{}, f.err
	}
	return f.description, nil
}
func (f *fakeLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.embedding, nil
}

type fakeDetector struct {
	detections []face.Detection
	err        error
}

func (f *fakeDetector) Detect(ctx context.Context, imageData []byte) ([]face.Detection, error) {
	return f.detections, f.err
}

func TestRunScanIngestsDirectory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeSolidJPEG(t, filepath.Join(dir, "photo.jpg"))

	thumbs := thumbnail.New(filepath.Join(t.TempDir(), "thumbs"), 64)
	ex := New(st, thumbs, nil, nil, nil, Options{ImageExtensions: []string{".jpg"}})

	err := ex.Run(ctx, store.ScheduledTask{ID: 1, Kind: store.TaskScan, TargetPath: dir})
	require.NoError(t, err)

	photos, err := st.ListByDirectory(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, photos, 1)
}

func TestRunLLMBatchDescribesAndEmbeds(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	writeSolidJPEG(t, path)

	photoID, err := st.UpsertPhoto(ctx, store.UpsertPhotoParams{Path: path, SizeBytes: 1, ModifiedAt: 1, ScannedAt: 1})
	require.NoError(t, err)

	thumbs := thumbnail.New(filepath.Join(t.TempDir(), "thumbs"), 64)
	llmClient := &fakeLLM{description: llm.Description{Text: "a photo", Tags: []string{"photo"}}, embedding: []float32{0.1, 0.2}}
	ex := New(st, thumbs, llmClient, nil, nil, Options{})

	err = ex.Run(ctx, store.ScheduledTask{ID: 2, Kind: store.TaskLLMBatch, TargetPath: dir})
	require.NoError(t, err)

	photo, err := st.GetByID(ctx, photoID)
	require.NoError(t, err)
	assert.Equal(t, "a photo", photo.Description)

	emb, err := st.GetEmbedding(ctx, photoID)
	require.NoError(t, err)
	require.NotNil(t, emb)
	assert.Equal(t, []float32{0.1, 0.2}, llm.DecodeVector(emb.Vector))
}

func TestRunFaceDetectionMarksScannedEvenOnFailure(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.jpg")
	writeSolidJPEG(t, path)

	photoID, err := st.UpsertPhoto(ctx, store.UpsertPhotoParams{Path: path, SizeBytes: 1, ModifiedAt: 1, ScannedAt: 1})
	require.NoError(t, err)

	thumbs := thumbnail.New(filepath.Join(t.TempDir(), "thumbs"), 64)
	detector := &fakeDetector{err: assertErr}
	ex := New(st, thumbs, nil, detector, nil, Options{})

	err = ex.Run(ctx, store.ScheduledTask{ID: 3, Kind: store.TaskFaceDetection, TargetPath: dir})
	require.NoError(t, err)

	scanned, err := st.IsScanned(ctx, photoID)
	require.NoError(t, err)
	assert.True(t, scanned)
}

func TestRunDispatchesUnknownKindAsError(t *testing.T) {
	st := newTestStore(t)
	thumbs := thumbnail.New(filepath.Join(t.TempDir(), "thumbs"), 64)
	ex := New(st, thumbs, nil, nil, nil, Options{})

	err := ex.Run(context.Background(), store.ScheduledTask{ID: 4, Kind: "bogus"})
	assert.Error(t, err)
}

func TestRegistryTracksRunningTasks(t *testing.T) {
	st := newTestStore(t)
	dir := t.TempDir()
	thumbs := thumbnail.New(filepath.Join(t.TempDir(), "thumbs"), 64)
	ex := New(st, thumbs, nil, nil, nil, Options{ImageExtensions: []string{".jpg"}})

	done := make(chan struct{})
	go func() {
		_ = ex.Run(context.Background(), store.ScheduledTask{ID: 5, Kind: store.TaskScan, TargetPath: dir})
		close(done)
	}()

	// The scan of an empty directory completes almost instantly; this just
	// exercises that Run always removes the task from the registry.
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scan did not complete")
	}
	assert.Empty(t, ex.Registry.List())
}

var assertErr = errDetectorUnavailable{}

type errDetectorUnavailable struct{}

func (errDetectorUnavailable) Error() string { return "detector unavailable" }
