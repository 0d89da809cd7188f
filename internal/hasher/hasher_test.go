package hasher

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"testing"
)

func TestHammingDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     uint64
		expected int
	}{
		{"identical", 0x0, 0x0, 0},
		{"completely different", 0xFFFFFFFFFFFFFFFF, 0x0, 64},
		{"one bit different", 0x1, 0x0, 1},
		{"half different", 0xFFFFFFFF00000000, 0x0, 32},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := HammingDistance(tc.a, tc.b); got != tc.expected {
				t.Errorf("HammingDistance(%x, %x) = %d; want %d", tc.a, tc.b, got, tc.expected)
			}
		})
	}
}

func TestClampThreshold(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{-1, 0},
		{0, 0},
		{64, 64},
		{65, 64},
		{256, 64},
	}
	for _, tc := range tests {
		if got := ClampThreshold(tc.in); got != tc.want {
			t.Errorf("ClampThreshold(%d) = %d; want %d", tc.in, got, tc.want)
		}
	}
}

func solidJPEG(t *testing.T, w, h int, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func TestPHashIdenticalImagesMatch(t *testing.T) {
	data := solidJPEG(t, 64, 64, color.RGBA{R: 120, G: 80, B: 200, A: 255})

	h1, err := PHash(data)
	if err != nil {
		t.Fatalf("PHash: %v", err)
	}
	h2, err := PHash(data)
	if err != nil {
		t.Fatalf("PHash: %v", err)
	}
	if HammingDistance(h1, h2) != 0 {
		t.Errorf("identical bytes produced different hashes: %016x vs %016x", h1, h2)
	}
}

func TestPHashHexFormat(t *testing.T) {
	hex := PHashHex(0xdeadbeef)
	if len(hex) != 16 {
		t.Fatalf("PHashHex length = %d; want 16", len(hex))
	}
	if !strings.HasSuffix(hex, "deadbeef") {
		t.Errorf("PHashHex = %q; want suffix deadbeef", hex)
	}
}

func TestStreamHashes(t *testing.T) {
	r := strings.NewReader("clepho")
	md5Hex, sha256Hex, err := StreamHashes(r)
	if err != nil {
		t.Fatalf("StreamHashes: %v", err)
	}
	if len(md5Hex) != 32 {
		t.Errorf("md5 hex length = %d; want 32", len(md5Hex))
	}
	if len(sha256Hex) != 64 {
		t.Errorf("sha256 hex length = %d; want 64", len(sha256Hex))
	}
}
