package face

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

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

func insertPhoto(t *testing.T, st *sqlite.Store, path string) int64 {
	t.Helper()
	id, err := st.UpsertPhoto(context.Background(), store.UpsertPhotoParams{
		Path: path, SizeBytes: 1, ModifiedAt: 1, ScannedAt: 1,
	})
	require.NoError(t, err)
	return id
}

func vec(seed float32) []float32 {
	v := make([]float32, 8)
	for i := range v {
		v[i] = seed + float32(i)*0.001
	}
	return v
}

func TestClusterGroupsNearDuplicateEmbeddings(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p1 := insertPhoto(t, st, "/a.jpg")
	p2 := insertPhoto(t, st, "/b.jpg")
	p3 := insertPhoto(t, st, "/c.jpg")

	_, err := st.InsertFace(ctx, store.Face{PhotoID: p1, Embedding: EncodeEmbedding(vec(1.0)), Confidence: 0.9})
	require.NoError(t, err)
	_, err = st.InsertFace(ctx, store.Face{PhotoID: p2, Embedding: EncodeEmbedding(vec(1.0)), Confidence: 0.9})
	require.NoError(t, err)
	_, err = st.InsertFace(ctx, store.Face{PhotoID: p3, Embedding: EncodeEmbedding(vec(-1.0)), Confidence: 0.9})
	require.NoError(t, err)

	e := New(st)
	clusters, err := e.Cluster(ctx, 0.05)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].FaceIDs, 2)
}

func TestClusterSkipsFacesAlreadyLinkedToPerson(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	p1 := insertPhoto(t, st, "/a.jpg")
	p2 := insertPhoto(t, st, "/b.jpg")

	f1, err := st.InsertFace(ctx, store.Face{PhotoID: p1, Embedding: EncodeEmbedding(vec(1.0)), Confidence: 0.9})
	require.NoError(t, err)
	_, err = st.InsertFace(ctx, store.Face{PhotoID: p2, Embedding: EncodeEmbedding(vec(1.0)), Confidence: 0.9})
	require.NoError(t, err)

	personID, err := st.CreatePerson(ctx, "Alice")
	require.NoError(t, err)
	require.NoError(t, st.LinkFaceToPerson(ctx, f1, personID))

	e := New(st)
	clusters, err := e.Cluster(ctx, 0.05)
	require.NoError(t, err)
	assert.Empty(t, clusters)
}
