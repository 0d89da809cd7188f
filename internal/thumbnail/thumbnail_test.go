package thumbnail

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 5, G: 150, B: 220, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestPathIsContentAddressed(t *testing.T) {
	c := New(t.TempDir(), 128)
	h := "abcdef0123456789"
	got := c.Path(h)
	want := filepath.Join(c.Root, "ab", h+".jpg")
	assert.Equal(t, want, got)
}

func TestGenerateWritesAndIsIdempotent(t *testing.T) {
	c := New(t.TempDir(), 64)
	data := solidJPEG(t, 512, 256)
	h := sha256Hex(data)

	path, err := c.Generate(h, data, false)
	require.NoError(t, err)
	assert.True(t, c.Has(h))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	decoded, _, err := image.Decode(bytes.NewReader(mustRead(t, path)))
	require.NoError(t, err)
	b := decoded.Bounds()
	assert.LessOrEqual(t, b.Dx(), 64)
	assert.LessOrEqual(t, b.Dy(), 64)

	// second call without force should not error and should leave the
	// existing file in place.
	path2, err := c.Generate(h, data, false)
	require.NoError(t, err)
	assert.Equal(t, path, path2)
}

func TestGenerateSkipsUpscaling(t *testing.T) {
	c := New(t.TempDir(), 256)
	data := solidJPEG(t, 32, 32)
	h := sha256Hex(data)

	_, err := c.Generate(h, data, false)
	require.NoError(t, err)

	decoded, _, err := image.Decode(bytes.NewReader(mustRead(t, c.Path(h))))
	require.NoError(t, err)
	b := decoded.Bounds()
	assert.Equal(t, 32, b.Dx())
	assert.Equal(t, 32, b.Dy())
}

func TestRemoveMissingIsNotAnError(t *testing.T) {
	c := New(t.TempDir(), 64)
	assert.NoError(t, c.Remove("deadbeef"))
}

func mustRead(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}
