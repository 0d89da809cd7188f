package migrate

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrulus/clepho/internal/store"
	"github.com/barrulus/clepho/internal/store/sqlite"
)

func TestRunCopiesPhotosFacesAndTasks(t *testing.T) {
	ctx := context.Background()

	src, err := sqlite.Open(":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	dst, err := sqlite.Open(":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { dst.Close() })

	photoID, err := src.UpsertPhoto(ctx, store.UpsertPhotoParams{
		Path: "/photos/a.jpg", ModifiedAt: time.Now().Unix(), ScannedAt: time.Now().Unix(),
		PerceptualHash: "abcd1234abcd1234",
	})
	require.NoError(t, err)
	require.NoError(t, src.PutEmbedding(ctx, photoID, []byte{1, 2, 3}, "test-model"))

	personID, err := src.CreatePerson(ctx, "Ada")
	require.NoError(t, err)
	faceID, err := src.InsertFace(ctx, store.Face{PhotoID: photoID, Embedding: []byte{9}, PersonID: &personID, Confidence: 0.8})
	require.NoError(t, err)
	require.NoError(t, src.MarkScanned(ctx, photoID, 1))

	_, err = src.CreateFaceCluster(ctx, []int64{faceID})
	require.NoError(t, err)

	_, err = src.CreateTask(ctx, store.ScheduledTask{
		Kind: store.TaskScan, TargetPath: "/photos", ScheduledAt: time.Now(),
	})
	require.NoError(t, err)

	stats, err := Run(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Photos)
	assert.Equal(t, 1, stats.Embeddings)
	assert.Equal(t, 1, stats.People)
	assert.Equal(t, 1, stats.Faces)
	assert.Equal(t, 1, stats.FaceClusters)
	assert.Equal(t, 1, stats.Tasks)

	got, err := dst.GetByPath(ctx, "/photos/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, photoID, got.ID, "photo id should be preserved across the copy")

	faces, err := dst.ListFacesByPhoto(ctx, got.ID)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.NotNil(t, faces[0].PersonID)

	scanned, err := dst.IsScanned(ctx, got.ID)
	require.NoError(t, err)
	assert.True(t, scanned)

	pending, err := dst.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
}

func TestRunCopiesTrashedAndUnhashedPhotos(t *testing.T) {
	ctx := context.Background()

	src, err := sqlite.Open(":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	dst, err := sqlite.Open(":memory:", slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { dst.Close() })

	// No perceptual hash yet: PhotosWithPerceptualHash would drop this row.
	unhashedID, err := src.UpsertPhoto(ctx, store.UpsertPhotoParams{
		Path: "/photos/unhashed.jpg", ModifiedAt: time.Now().Unix(), ScannedAt: time.Now().Unix(),
	})
	require.NoError(t, err)

	// Trashed: PhotosWithPerceptualHash filters trashed_at IS NULL.
	trashedID, err := src.UpsertPhoto(ctx, store.UpsertPhotoParams{
		Path: "/photos/trashed.jpg", ModifiedAt: time.Now().Unix(), ScannedAt: time.Now().Unix(),
		PerceptualHash: "deadbeefdeadbeef",
	})
	require.NoError(t, err)
	now := time.Now().Unix()
	require.NoError(t, src.UpdateTrashFields(ctx, trashedID, "/trash/trashed.jpg", "/photos/trashed.jpg", &now))

	stats, err := Run(ctx, src, dst)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Photos)

	unhashed, err := dst.GetByID(ctx, unhashedID)
	require.NoError(t, err)
	assert.Equal(t, "/photos/unhashed.jpg", unhashed.Path)

	// insertPhoto re-homes trashed photos at their original path rather than
	// inheriting the source's trash layout, so the copy arrives untrashed.
	trashed, err := dst.GetByID(ctx, trashedID)
	require.NoError(t, err)
	assert.False(t, trashed.IsTrashed())
	assert.Equal(t, "/photos/trashed.jpg", trashed.Path)
}
