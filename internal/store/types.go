// Package store defines the backend-agnostic persistence contract shared
// by the embedded (sqlite) and networked (postgresql) implementations, the
// way the teacher's internal/database package defines reader/writer
// interfaces that both a PostgreSQL and a mock implementation satisfy.
package store

import "time"

// Photo is the identity = stable integer id; natural key = path (§3).
type Photo struct {
	ID        int64
	Path      string
	Filename  string
	Directory string

	SizeBytes  int64
	ModifiedAt time.Time // filesystem mtime
	ScannedAt  time.Time

	Width  int
	Height int
	Format string

	EXIF    ExifData
	RawEXIF []byte // JSON rendering of the decoded EXIF tags, captured alongside EXIF (§4.3)

	MD5            string
	SHA256         string
	PerceptualHash string // hex(16)

	Description       string
	MarkedForDeletion bool
	IsFavorite        bool

	OriginalPath string // set iff trashed
	TrashedAt    *time.Time
}

// IsTrashed reports whether the photo currently lives under the trash
// root, per the invariant in §3: original_path + trashed_at non-null iff
// trashed.
func (p *Photo) IsTrashed() bool {
	return p.TrashedAt != nil
}

// ExifData is the structured subset of EXIF the core cares about; fields
// are pointers/zero-value when the tag was absent or malformed (§4.3:
// EXIF parsing never fails the pipeline).
type ExifData struct {
	CameraMake    string
	CameraModel   string
	Lens          string
	FocalLength   float64
	Aperture      float64
	ShutterSpeed  string
	ISO           int
	TakenAt       *time.Time
	GPSLatitude   *float64
	GPSLongitude  *float64
}

// Embedding is identity = photo id (1:1), created by the LLM embedding
// pass (§3).
type Embedding struct {
	PhotoID   int64
	Vector    []byte
	ModelName string
	CreatedAt time.Time
}

// Face is identity = integer id, created by FaceDetector per photo (§3).
type Face struct {
	ID         int64
	PhotoID    int64
	BBox       BBox
	Embedding  []byte // 512-dim, opaque
	PersonID   *int64 // nullable, ON DELETE SET NULL
	Confidence float64
}

// BBox is a pixel bounding box (x, y, w, h).
type BBox struct {
	X, Y, W, H float64
}

// Person is identity = integer id; name is non-unique (§3).
type Person struct {
	ID   int64
	Name string
}

// FaceCluster groups faces many-to-many, produced by the clustering pass.
type FaceCluster struct {
	ID      int64
	FaceIDs []int64
}

// FaceScan marks that face detection has been attempted for a photo,
// preventing redundant detection (§3).
type FaceScan struct {
	PhotoID   int64
	FaceCount int
	ScannedAt time.Time
}

// SimilarityGroupKind distinguishes exact (sha256) from perceptual
// (Hamming-radius graph) groups (§3, §4.7).
type SimilarityGroupKind string

const (
	SimilarityExact      SimilarityGroupKind = "exact"
	SimilarityPerceptual SimilarityGroupKind = "perceptual"
)

// SimilarityGroup is transient: may be regenerated on demand by
// DuplicateEngine (§3).
type SimilarityGroup struct {
	ID       int64
	Kind     SimilarityGroupKind
	PhotoIDs []int64
}

// TaskKind enumerates ScheduledTask payload dispatch targets (§3, §4.9).
type TaskKind string

const (
	TaskScan          TaskKind = "scan"
	TaskLLMBatch      TaskKind = "llm_batch"
	TaskFaceDetection TaskKind = "face_detection"
)

// TaskStatus is the node set of the status machine in §4.9.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusCancelled TaskStatus = "cancelled"
	StatusFailed    TaskStatus = "failed"
)

// ScheduledTask is identity = integer id (§3).
type ScheduledTask struct {
	ID           int64
	Kind         TaskKind
	TargetPath   string
	PhotoIDs     []int64 // optional subset, nil means "all eligible"
	ScheduledAt  time.Time
	HoursStart   *int // 0-23, nil means "no window"
	HoursEnd     *int
	Status       TaskStatus
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// HasWindow reports whether the task has an hours-of-operation window
// configured at all.
func (t *ScheduledTask) HasWindow() bool {
	return t.HoursStart != nil && t.HoursEnd != nil
}

// DirectoryPrompt customises the LLM prompt used for a given directory
// (§3).
type DirectoryPrompt struct {
	Directory string
	Prompt    string
}

// PhotoQualityInput is the minimal projection DuplicateEngine needs to
// rank candidates within a perceptual/exact group, returned by
// PhotosWithPerceptualHash so the engine never has to load full rows.
type PhotoQualityInput struct {
	ID             int64
	Path           string
	SHA256         string
	PerceptualHash string
	Width          int
	Height         int
	SizeBytes      int64
}
