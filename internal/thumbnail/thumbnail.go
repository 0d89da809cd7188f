// Package thumbnail implements ThumbnailCache (§4.4): a content-addressed
// on-disk cache of downscaled previews, keyed by the photo's SHA-256 so
// identical content shares a thumbnail regardless of path.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Cache generates and stores JPEG thumbnails under Root, addressed by the
// source photo's hex(sha256) digest.
type Cache struct {
	Root string
	Size int // target edge length; callers typically pass config.Thumbnail.Size
}

// New returns a Cache rooted at root, generating thumbnails at size pixels
// along the longer edge.
func New(root string, size int) *Cache {
	if size <= 0 {
		size = 256
	}
	return &Cache{Root: root, Size: size}
}

// Path returns the on-disk location of the thumbnail for sha256 hex digest
// h, without checking whether it exists: "<root>/<h[0:2]>/<h>.jpg".
func (c *Cache) Path(sha256Hex string) string {
	if len(sha256Hex) < 2 {
		return filepath.Join(c.Root, sha256Hex+".jpg")
	}
	return filepath.Join(c.Root, sha256Hex[:2], sha256Hex+".jpg")
}

// Has reports whether a thumbnail for sha256Hex already exists.
func (c *Cache) Has(sha256Hex string) bool {
	_, err := os.Stat(c.Path(sha256Hex))
	return err == nil
}

// Generate decodes imageData, downscales it to fit within c.Size on the
// longer edge while preserving aspect ratio, and writes it to the
// content-addressed path for sha256Hex. Writes go to a temp file in the
// same directory and are renamed into place atomically, so concurrent
// generation of the same content is safe (last writer wins, identical
// bytes). A pre-existing thumbnail is left untouched unless force is true.
func (c *Cache) Generate(sha256Hex string, imageData []byte, force bool) (string, error) {
	dst := c.Path(sha256Hex)
	if !force && c.Has(sha256Hex) {
		return dst, nil
	}

	thumb, err := resize(imageData, c.Size)
	if err != nil {
		return "", fmt.Errorf("thumbnail: resize: %w", err)
	}

	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("thumbnail: mkdir %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-"+sha256Hex+"-*.jpg")
	if err != nil {
		return "", fmt.Errorf("thumbnail: create temp: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(thumb); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("thumbnail: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("thumbnail: close temp: %w", err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("thumbnail: rename into place: %w", err)
	}
	return dst, nil
}

// Remove deletes the thumbnail for sha256Hex, if present. Missing
// thumbnails are not an error.
func (c *Cache) Remove(sha256Hex string) error {
	err := os.Remove(c.Path(sha256Hex))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("thumbnail: remove: %w", err)
	}
	return nil
}

// resize mirrors the teacher's ResizeImage (internal/ai/image.go): decode,
// scale to fit within maxSize on the longer edge, re-encode as JPEG.
// Images already within bounds are still re-encoded so the cache always
// holds a consistent format and quality.
func resize(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width <= maxSize && height <= maxSize {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, fmt.Errorf("encode: %w", err)
		}
		return buf.Bytes(), nil
	}

	var newWidth, newHeight int
	if width > height {
		newWidth = maxSize
		newHeight = int(float64(height) * float64(maxSize) / float64(width))
	} else {
		newHeight = maxSize
		newWidth = int(float64(width) * float64(maxSize) / float64(height))
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode resized: %w", err)
	}
	return buf.Bytes(), nil
}
