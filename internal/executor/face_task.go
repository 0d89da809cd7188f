package executor

import (
	"context"
	"fmt"
	"os"

	"github.com/barrulus/clepho/internal/face"
	"github.com/barrulus/clepho/internal/store"
)

// runFaceDetection detects faces in every not-yet-scanned candidate
// photo, persists them, marks the photo scanned either way (§6.5: "Failures
// yield zero-face records; FaceScan is still marked so the photo is not
// retried until explicitly forced"), then re-clusters.
func (e *Executor) runFaceDetection(ctx context.Context, task store.ScheduledTask) error {
	if e.detector == nil {
		return fmt.Errorf("executor: face detection task %d: no detector configured", task.ID)
	}

	photos, err := e.candidates(ctx, task)
	if err != nil {
		return err
	}

	var scanned, failed int
	for _, p := range photos {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		already, err := e.store.IsScanned(ctx, p.ID)
		if err != nil {
			return fmt.Errorf("executor: check face scan state for %d: %w", p.ID, err)
		}
		if already {
			continue
		}

		count, err := e.detectFaces(ctx, p)
		if err != nil {
			e.logger.Warn("face detection failed for photo", "photo_id", p.ID, "error", err)
			failed++
			count = 0
		}
		if err := e.store.MarkScanned(ctx, p.ID, count); err != nil {
			return fmt.Errorf("executor: mark scanned for %d: %w", p.ID, err)
		}
		scanned++
	}

	clusters, err := e.cluster.Cluster(ctx, e.opts.FaceClusterDistance)
	if err != nil {
		return fmt.Errorf("executor: cluster faces: %w", err)
	}

	e.logger.Info("face detection completed", "target", task.TargetPath,
		"scanned", scanned, "failed", failed, "clusters", len(clusters))
	return nil
}

func (e *Executor) detectFaces(ctx context.Context, p store.Photo) (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, fmt.Errorf("read photo: %w", err)
	}

	detections, err := e.detector.Detect(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("detect: %w", err)
	}

	for _, d := range detections {
		_, err := e.store.InsertFace(ctx, store.Face{
			PhotoID:    p.ID,
			BBox:       store.BBox{X: d.BBox.X, Y: d.BBox.Y, W: d.BBox.W, H: d.BBox.H},
			Embedding:  face.EncodeEmbedding(d.Embedding),
			Confidence: d.Confidence,
		})
		if err != nil {
			return 0, fmt.Errorf("insert face: %w", err)
		}
	}
	return len(detections), nil
}
