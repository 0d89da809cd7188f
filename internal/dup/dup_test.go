package dup

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrulus/clepho/internal/hasher"
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

func insertPhoto(t *testing.T, st *sqlite.Store, path, sha256, phash string, w, h int, size int64) int64 {
	t.Helper()
	id, err := st.UpsertPhoto(context.Background(), store.UpsertPhotoParams{
		Path:           path,
		SizeBytes:      size,
		ModifiedAt:     1,
		ScannedAt:      1,
		Width:          w,
		Height:         h,
		SHA256:         sha256,
		PerceptualHash: phash,
	})
	require.NoError(t, err)
	return id
}

func TestFindGroupsExactDuplicates(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	insertPhoto(t, st, "/a/IMG_0001.jpg", "deadbeef", hasher.PHashHex(0x1), 100, 100, 1000)
	insertPhoto(t, st, "/a/IMG_0001_copy.jpg", "deadbeef", hasher.PHashHex(0x1), 100, 100, 1000)
	insertPhoto(t, st, "/a/unique.jpg", "cafef00d", hasher.PHashHex(0xFFFFFFFFFFFFFFFF), 50, 50, 500)

	e := New(st, DefaultWeights, nil)
	groups, err := e.FindGroups(ctx, 10)
	require.NoError(t, err)

	var exact []Group
	for _, g := range groups {
		if g.Kind == store.SimilarityExact {
			exact = append(exact, g)
		}
	}
	require.Len(t, exact, 1)
	assert.Len(t, exact[0].Members, 2)
	// IMG_0001.jpg scores higher than the _copy suffix variant despite
	// identical resolution/size.
	assert.Equal(t, "/a/IMG_0001.jpg", exact[0].Members[0].Photo.Path)
}

func TestFindGroupsPerceptualConnectedComponent(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	// Hamming distance 1 apart: within default threshold.
	insertPhoto(t, st, "/a/1.jpg", "sha1", hasher.PHashHex(0b0000), 200, 200, 2000)
	insertPhoto(t, st, "/a/2.jpg", "sha2", hasher.PHashHex(0b0001), 200, 200, 2000)
	// Far from both: should not join the component at threshold 2.
	insertPhoto(t, st, "/a/3.jpg", "sha3", hasher.PHashHex(0xFFFFFFFFFFFFFFFF), 200, 200, 2000)

	e := New(st, DefaultWeights, nil)
	groups, err := e.FindGroups(ctx, 2)
	require.NoError(t, err)

	var perceptual []Group
	for _, g := range groups {
		if g.Kind == store.SimilarityPerceptual {
			perceptual = append(perceptual, g)
		}
	}
	require.Len(t, perceptual, 1)
	assert.Len(t, perceptual[0].Members, 2)
}

func TestFindGroupsWarnsOnThresholdClamp(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	insertPhoto(t, st, "/a/1.jpg", "sha1", hasher.PHashHex(0x1), 100, 100, 1000)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	e := New(st, DefaultWeights, logger)
	_, err := e.FindGroups(ctx, 200)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "clamping")

	buf.Reset()
	_, err = e.FindGroups(ctx, 32)
	require.NoError(t, err)
	assert.Empty(t, buf.String())
}

func TestAutoSelectMarksAllButKeep(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	insertPhoto(t, st, "/a/IMG_0001.jpg", "same", hasher.PHashHex(0x1), 100, 100, 1000)
	insertPhoto(t, st, "/a/IMG_0002.jpg", "same", hasher.PHashHex(0x1), 100, 100, 1000)

	e := New(st, DefaultWeights, nil)
	_, err := e.FindGroups(ctx, 10)
	require.NoError(t, err)

	e.AutoSelect(0)
	ids := e.MarkedPhotoIDs()
	assert.Len(t, ids, 1)

	e.ClearMarks(0)
	assert.Empty(t, e.MarkedPhotoIDs())
}

func TestNameBonusRewardsCameraStyleAndPenalizesCopySuffix(t *testing.T) {
	assert.Greater(t, nameBonus("/x/IMG_1234.jpg"), nameBonus("/x/IMG_1234_copy.jpg"))
	assert.Greater(t, nameBonus("/x/DSC0099.jpg"), nameBonus("/x/vacation(1).jpg"))
}
