package metadata

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barrulus/clepho/internal/store"
)

func solidJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 10, G: 200, B: 50, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestExtractBytesDimensionsAndFormat(t *testing.T) {
	data := solidJPEG(t, 64, 32)

	res, err := ExtractBytes(data)
	require.NoError(t, err)
	assert.Equal(t, 64, res.Width)
	assert.Equal(t, 32, res.Height)
	assert.Equal(t, "jpeg", res.Format)
}

func TestExtractBytesNoExifNeverFails(t *testing.T) {
	data := solidJPEG(t, 16, 16)

	res, err := ExtractBytes(data)
	require.NoError(t, err)
	assert.Equal(t, store.ExifData{}, res.EXIF)
	assert.Nil(t, res.RawEXIF)
}

func TestExtractBytesMalformedHeaderStillReturnsExif(t *testing.T) {
	res, err := ExtractBytes([]byte("not an image"))
	require.Error(t, err)
	assert.Equal(t, 0, res.Width)
	assert.Equal(t, 0, res.Height)
	assert.Equal(t, store.ExifData{}, res.EXIF)
}

func TestExtractOpensFileFromDisk(t *testing.T) {
	data := solidJPEG(t, 8, 8)
	path := t.TempDir() + "/photo.jpg"
	require.NoError(t, os.WriteFile(path, data, 0o644))

	res, err := Extract(path)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Width)
	assert.Equal(t, 8, res.Height)
}
