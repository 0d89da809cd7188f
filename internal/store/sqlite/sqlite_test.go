package sqlite

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrulus/clepho/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(":memory:", slog.Default())
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, s.Close())
	})
	return s
}

func TestOpen(t *testing.T) {
	t.Run("applies migration", func(t *testing.T) {
		s := newTestStore(t)
		var version int
		require.NoError(t, s.db.QueryRowContext(context.Background(), "PRAGMA user_version").Scan(&version))
		assert.Equal(t, schemaVersion, version)
	})

	t.Run("idempotent reopen", func(t *testing.T) {
		s := newTestStore(t)
		require.NoError(t, runMigrations(context.Background(), s.db, slog.Default()))
	})

	t.Run("reports backend name", func(t *testing.T) {
		s := newTestStore(t)
		assert.Equal(t, "sqlite", s.Backend())
	})
}

func TestUpsertPhotoAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	params := store.UpsertPhotoParams{
		Path:       "/photos/2024/a.jpg",
		SizeBytes:  1024,
		ModifiedAt: time.Now().Unix(),
		ScannedAt:  time.Now().Unix(),
		Width:      800,
		Height:     600,
		Format:     "jpeg",
		SHA256:     "deadbeef",
	}

	id, err := s.UpsertPhoto(ctx, params)
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "a.jpg", got.Filename)
	assert.Equal(t, "/photos/2024", got.Directory)
	assert.False(t, got.IsTrashed())

	t.Run("second upsert at same path updates in place", func(t *testing.T) {
		params.SizeBytes = 2048
		id2, err := s.UpsertPhoto(ctx, params)
		require.NoError(t, err)
		assert.Equal(t, id, id2)

		got, err := s.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(2048), got.SizeBytes)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.GetByPath(ctx, "/nope.jpg")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestTrashFieldsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.UpsertPhoto(ctx, store.UpsertPhotoParams{
		Path: "/photos/b.jpg", ModifiedAt: 1, ScannedAt: 1,
	})
	require.NoError(t, err)

	now := time.Now().Unix()
	require.NoError(t, s.UpdateTrashFields(ctx, id, "/trash/xyz-b.jpg", "/photos/b.jpg", &now))

	got, err := s.GetByID(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.IsTrashed())
	assert.Equal(t, "/photos/b.jpg", got.OriginalPath)
}

func TestTaskClaimDue(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	id, err := s.CreateTask(ctx, store.ScheduledTask{
		Kind:        store.TaskScan,
		TargetPath:  "/photos",
		ScheduledAt: time.Unix(now-10, 0),
	})
	require.NoError(t, err)

	t.Run("claims due pending task", func(t *testing.T) {
		claimed, err := s.ClaimDue(ctx, now)
		require.NoError(t, err)
		require.NotNil(t, claimed)
		assert.Equal(t, id, claimed.ID)
		assert.Equal(t, store.StatusRunning, claimed.Status)
	})

	t.Run("second claim finds nothing", func(t *testing.T) {
		claimed, err := s.ClaimDue(ctx, now)
		require.NoError(t, err)
		assert.Nil(t, claimed)
	})
}

func TestTaskHoursWindow(t *testing.T) {
	t.Run("overnight window wraps past midnight", func(t *testing.T) {
		assert.True(t, withinHoursWindow(23, 22, 6))
		assert.True(t, withinHoursWindow(2, 22, 6))
		assert.False(t, withinHoursWindow(12, 22, 6))
	})

	t.Run("same-day window", func(t *testing.T) {
		assert.True(t, withinHoursWindow(9, 8, 17))
		assert.False(t, withinHoursWindow(20, 8, 17))
	})
}

func TestReapStaleRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().Unix()

	id, err := s.CreateTask(ctx, store.ScheduledTask{
		Kind: store.TaskScan, TargetPath: "/photos", ScheduledAt: time.Unix(now-100, 0),
	})
	require.NoError(t, err)
	_, err = s.ClaimDue(ctx, now-100)
	require.NoError(t, err)

	n, err := s.ReapStaleRunning(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	task, err := s.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusFailed, task.Status)
}

func TestSimilarityGroups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.UpsertPhoto(ctx, store.UpsertPhotoParams{Path: "/a.jpg", ModifiedAt: 1, ScannedAt: 1})
	require.NoError(t, err)
	id2, err := s.UpsertPhoto(ctx, store.UpsertPhotoParams{Path: "/b.jpg", ModifiedAt: 1, ScannedAt: 1})
	require.NoError(t, err)

	_, err = s.CreateSimilarityGroup(ctx, store.SimilarityExact, []int64{id1, id2})
	require.NoError(t, err)

	groups, err := s.ListSimilarityGroups(ctx, store.SimilarityExact)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.ElementsMatch(t, []int64{id1, id2}, groups[0].PhotoIDs)

	require.NoError(t, s.DeleteAllSimilarityGroups(ctx, store.SimilarityExact))
	groups, err = s.ListSimilarityGroups(ctx, store.SimilarityExact)
	require.NoError(t, err)
	assert.Empty(t, groups)
}

func TestFaceClusterLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	photoID, err := s.UpsertPhoto(ctx, store.UpsertPhotoParams{Path: "/c.jpg", ModifiedAt: 1, ScannedAt: 1})
	require.NoError(t, err)

	faceID, err := s.InsertFace(ctx, store.Face{PhotoID: photoID, Embedding: []byte{1, 2, 3}, Confidence: 0.9})
	require.NoError(t, err)

	personID, err := s.CreatePerson(ctx, "Ada")
	require.NoError(t, err)
	require.NoError(t, s.LinkFaceToPerson(ctx, faceID, personID))

	faces, err := s.ListFacesByPerson(ctx, personID)
	require.NoError(t, err)
	require.Len(t, faces, 1)

	require.NoError(t, s.DeletePerson(ctx, personID))
	faces, err = s.ListUnassignedFaces(ctx)
	require.NoError(t, err)
	require.Len(t, faces, 1)
	assert.Nil(t, faces[0].PersonID)
}
