// Package llm wraps the external vision-description and text-embedding
// collaborators named in §6.5: a provider describes a photo (optionally
// tagging it via a "TAGS: ..." suffix) or embeds a text string into a
// fixed-width vector. Failures are per-photo and non-fatal; the executor
// decides what that means for task status.
package llm

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"math"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
)

// Usage tracks token counts and estimated USD cost, the way the teacher's
// ai.Usage accumulates per-provider spend for a sort run.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalCostUSD float64
}

// Description is a vision provider's response: the free-text description
// plus any tags parsed from a trailing "TAGS: a, b, c" line (§6.5).
type Description struct {
	Text string
	Tags []string
}

// VisionClient describes a photo from its raw bytes and a directory-scoped
// prompt (§3 DirectoryPrompt, §6.5).
type VisionClient interface {
	Describe(ctx context.Context, imageData []byte, prompt string) (Description, error)
}

// EmbeddingClient embeds free text into a fixed-width vector for semantic
// search over photo descriptions (§6.5).
type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client is a single LLM provider offering both collaborator roles, plus
// usage accounting (§6.5, SPEC_FULL.md D.1).
type Client interface {
	Name() string
	VisionClient
	EmbeddingClient
	Usage() Usage
}

const tagsPrefix = "TAGS:"

// parseDescription splits a provider's raw response on a trailing
// "TAGS: a, b, c" line, per §6.5's "optionally with TAGS: ... suffix".
func parseDescription(raw string) Description {
	lines := strings.Split(strings.TrimRight(raw, "\n"), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(strings.ToUpper(trimmed), tagsPrefix) {
			if trimmed == "" {
				continue
			}
			break
		}
		rest := trimmed[len(tagsPrefix):]
		var tags []string
		for _, t := range strings.Split(rest, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				tags = append(tags, t)
			}
		}
		text := strings.TrimSpace(strings.Join(lines[:i], "\n"))
		return Description{Text: text, Tags: tags}
	}
	return Description{Text: strings.TrimSpace(raw)}
}

// resizeForVision downscales imageData to fit within maxSize on its
// longest edge and re-encodes as JPEG, adapted from the teacher's
// ai.ResizeImage (internal/ai/image.go): every vision provider call pays
// for tokens proportional to pixel count, so shrinking before upload is
// the same cost-control move the teacher makes for every photo it sends.
func resizeForVision(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("llm: decode image: %w", err)
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if width <= maxSize && height <= maxSize {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
			return nil, fmt.Errorf("llm: encode image: %w", err)
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

	dst := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("llm: encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

// EncodeVector packs a float32 embedding into the opaque byte blob
// store.Embedding.Vector carries (§3: Embedding is a fixed-width vector
// stored as a blob, model name stored alongside).
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is EncodeVector's inverse.
func DecodeVector(b []byte) []float32 {
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
