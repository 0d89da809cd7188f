// Package hasher provides the three pure hash functions Scanner runs
// over every ingested file (§4.2): streaming MD5/SHA-256 for identity
// and exact-duplicate detection, and a 64-bit perceptual hash for
// near-duplicate grouping. All three are deterministic given identical
// input bytes, since perceptual hashes are compared across machines.
package hasher

import (
	"bytes"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"math"
	"sort"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// StreamHashes computes MD5 and SHA-256 over r in a single pass, the way
// Scanner's step 3 hashes bytes once and derives both digests from it.
func StreamHashes(r io.Reader) (md5Hex, sha256Hex string, err error) {
	md5h := md5.New()
	sha256h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(md5h, sha256h), r); err != nil {
		return "", "", fmt.Errorf("hasher: stream: %w", err)
	}
	return hex.EncodeToString(md5h.Sum(nil)), hex.EncodeToString(sha256h.Sum(nil)), nil
}

// PHash computes a 64-bit perceptual hash via DCT over a 32x32 grayscale
// downscale, per §4.2: the low-frequency 8x8 block (minus the DC term)
// is median-split into a 64-bit signature.
func PHash(imageData []byte) (uint64, error) {
	img, _, err := image.Decode(bytes.NewReader(imageData))
	if err != nil {
		return 0, fmt.Errorf("hasher: decode: %w", err)
	}
	return computePHash(img), nil
}

// PHashHex renders a pHash as the hex(16) string stored in Photo.PerceptualHash.
func PHashHex(h uint64) string {
	return fmt.Sprintf("%016x", h)
}

// HammingDistance is popcount(a XOR b), the metric DuplicateEngine
// compares against the configured similarity threshold (§4.2).
func HammingDistance(a, b uint64) int {
	x := a ^ b
	n := 0
	for x != 0 {
		n++
		x &= x - 1
	}
	return n
}

// ClampThreshold enforces §4.2's documented bound: the signature is
// 64-bit, so a configured threshold above 64 is clamped (callers log a
// warning; this function only clamps).
func ClampThreshold(threshold int) int {
	if threshold < 0 {
		return 0
	}
	if threshold > 64 {
		return 64
	}
	return threshold
}

func computePHash(img image.Image) uint64 {
	resized := resizeImage(img, 32, 32)
	gray := toGrayscale(resized)
	dct := computeDCT(gray)

	lowFreq := make([]float64, 64)
	idx := 0
	for u := 0; u < 8; u++ {
		for v := 0; v < 8; v++ {
			if u == 0 && v == 0 {
				continue // skip DC component
			}
			if idx < 64 {
				lowFreq[idx] = dct[u][v]
				idx++
			}
		}
	}
	for ; idx < 64; idx++ {
		lowFreq[idx] = dct[idx/8][idx%8]
	}

	median := computeMedian(lowFreq)

	var hash uint64
	for i := 0; i < 64; i++ {
		if lowFreq[i] > median {
			hash |= 1 << uint(63-i)
		}
	}
	return hash
}

func resizeImage(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Over, nil)
	return dst
}

func toGrayscale(img *image.RGBA) [][]float64 {
	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	gray := make([][]float64, width)
	for x := 0; x < width; x++ {
		gray[x] = make([]float64, height)
		for y := 0; y < height; y++ {
			r, g, b, _ := img.At(x, y).RGBA()
			gray[x][y] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return gray
}

func computeDCT(gray [][]float64) [][]float64 {
	size := len(gray)
	dct := make([][]float64, size)
	for i := range dct {
		dct[i] = make([]float64, size)
	}

	cosTable := make([][]float64, size)
	for i := range cosTable {
		cosTable[i] = make([]float64, size)
		for j := 0; j < size; j++ {
			cosTable[i][j] = math.Cos(math.Pi * float64(i) * (2*float64(j) + 1) / (2 * float64(size)))
		}
	}

	for u := 0; u < size; u++ {
		for v := 0; v < size; v++ {
			var sum float64
			for x := 0; x < size; x++ {
				for y := 0; y < size; y++ {
					sum += gray[x][y] * cosTable[u][x] * cosTable[v][y]
				}
			}
			dct[u][v] = sum
		}
	}
	return dct
}

func computeMedian(values []float64) float64 {
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}
