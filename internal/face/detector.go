// Package face implements the FaceDetector collaborator client (§6.5) and
// the HNSW-backed clustering pass that groups detected faces into
// FaceCluster rows (§3, SPEC_FULL.md D.2).
package face

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Detection is one face a Detector found in a photo: its bounding box,
// a 512-dim embedding, and a confidence score (§6.5).
type Detection struct {
	BBox       BBox
	Embedding  []float32
	Confidence float64
}

// BBox mirrors store.BBox; kept separate so this package doesn't need to
// import store for its client-facing type.
type BBox struct {
	X, Y, W, H float64
}

// Detector returns the faces found in an image. Failures yield zero-face
// results per §6.5: "Failures yield zero-face records; FaceScan is still
// marked so the photo is not retried until explicitly forced."
type Detector interface {
	Detect(ctx context.Context, imageData []byte) ([]Detection, error)
}

const defaultDetectorURL = "http://localhost:8001"

// HTTPDetector posts an image to a local face-detection server and parses
// its JSON response, grounded on the teacher's fingerprint.EmbeddingClient
// (internal/fingerprint/embedding.go): same multipart-upload-to-localhost-
// server shape, generalized from a single CLIP vector to a list of
// per-face (bbox, embedding, confidence) records.
type HTTPDetector struct {
	parsedURL *url.URL
	client    *http.Client
}

// NewHTTPDetector validates baseURL and returns a Detector backed by it.
func NewHTTPDetector(baseURL string) (*HTTPDetector, error) {
	if baseURL == "" {
		baseURL = defaultDetectorURL
	}
	parsed, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("face: invalid detector URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("face: invalid detector URL scheme %q: must be http or https", parsed.Scheme)
	}
	if parsed.Host == "" {
		return nil, errors.New("face: invalid detector URL: missing host")
	}
	return &HTTPDetector{
		parsedURL: parsed,
		client:    &http.Client{Timeout: 60 * time.Second},
	}, nil
}

type detectionResponse struct {
	Faces []struct {
		BBox       [4]float64 `json:"bbox"` // x, y, w, h
		Embedding  []float32  `json:"embedding"`
		Confidence float64    `json:"confidence"`
	} `json:"faces"`
}

// Detect posts imageData as a multipart upload to "<base>/detect" and
// parses the returned face list.
func (d *HTTPDetector) Detect(ctx context.Context, imageData []byte) ([]Detection, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("image", "photo.jpg")
	if err != nil {
		return nil, fmt.Errorf("face: create form file: %w", err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("face: write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("face: close multipart writer: %w", err)
	}

	endpoint := d.parsedURL.String() + "/detect"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("face: build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("face: detector request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("face: read detector response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("face: detector returned %d: %s", resp.StatusCode, string(body))
	}

	var parsed detectionResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("face: decode detector response: %w", err)
	}

	detections := make([]Detection, len(parsed.Faces))
	for i, f := range parsed.Faces {
		detections[i] = Detection{
			BBox:       BBox{X: f.BBox[0], Y: f.BBox[1], W: f.BBox[2], H: f.BBox[3]},
			Embedding:  f.Embedding,
			Confidence: f.Confidence,
		}
	}
	return detections, nil
}
