package store

import "context"

// UpsertPhotoParams is the write-side projection Scanner uses for both
// insert (new path) and update (path exists, mtime/size changed) (§4.5).
type UpsertPhotoParams struct {
	Path       string
	SizeBytes  int64
	ModifiedAt int64 // unix seconds, matches filesystem mtime granularity
	ScannedAt  int64

	Width  int
	Height int
	Format string

	EXIF    ExifData
	RawEXIF []byte

	MD5            string
	SHA256         string
	PerceptualHash string

	// PreserveID, when non-zero, seeds the inserted row with this id
	// instead of letting the backend assign one from its own sequence.
	// Only migrate.Run sets this; Scanner always leaves it zero (§4.1:
	// "preserving ids" only matters for the sqlite->postgres copy, not
	// for ordinary ingestion).
	PreserveID int64
}

// PhotoReader covers read-only Photo access (§4.1).
type PhotoReader interface {
	GetByPath(ctx context.Context, path string) (*Photo, error)
	GetByID(ctx context.Context, id int64) (*Photo, error)
	ListByDirectory(ctx context.Context, directory string) ([]Photo, error)
	PhotosBySHA256(ctx context.Context, hex string) ([]Photo, error)
	// PhotosWithPerceptualHash streams the (id, hash, quality-ranking
	// inputs) projection DuplicateEngine needs, restricted to active
	// (non-trashed) photos with a non-empty perceptual hash.
	PhotosWithPerceptualHash(ctx context.Context) ([]PhotoQualityInput, error)
	// ListAllPhotos returns every photo row regardless of trash state or
	// whether a perceptual hash has been computed yet, ordered by id.
	// migrate.Run uses this instead of PhotosWithPerceptualHash so a
	// sqlite->postgres copy doesn't silently drop trashed or unhashed
	// photos (§4.1, §8 round-trip property: "row counts per table match").
	ListAllPhotos(ctx context.Context) ([]Photo, error)
}

// PhotoWriter covers Scanner/TrashManager writes to Photo rows (§4.1, §4.8).
type PhotoWriter interface {
	// UpsertPhoto inserts a new row or updates the existing row at the
	// same path, returning its id either way (§4.5 step 7).
	UpsertPhoto(ctx context.Context, p UpsertPhotoParams) (int64, error)
	UpdateDescription(ctx context.Context, photoID int64, description string) error
	// UpdateTrashFields sets or clears the trash-tracking triple
	// (path, original_path, trashed_at) atomically (§3 invariant b).
	UpdateTrashFields(ctx context.Context, photoID int64, path, originalPath string, trashedAt *int64) error
	SetMarkedForDeletion(ctx context.Context, photoID int64, marked bool) error
	SetFavorite(ctx context.Context, photoID int64, favorite bool) error
	// Delete removes the photo row; backends cascade to Embedding, Face,
	// FaceScan, and PhotoSimilarity membership (§3 Ownership).
	Delete(ctx context.Context, photoID int64) error
}

// EmbeddingStore covers the LLM embedding pass's 1:1 projection (§3, §4.1).
type EmbeddingStore interface {
	PutEmbedding(ctx context.Context, photoID int64, vector []byte, model string) error
	GetEmbedding(ctx context.Context, photoID int64) (*Embedding, error)
	IterEmbeddings(ctx context.Context, fn func(Embedding) error) error
}

// FaceStore covers Face/Person/FaceCluster/FaceScan operations (§3, §4.1).
type FaceStore interface {
	InsertFace(ctx context.Context, f Face) (int64, error)
	ListFacesByPhoto(ctx context.Context, photoID int64) ([]Face, error)
	ListFacesByPerson(ctx context.Context, personID int64) ([]Face, error)
	ListUnassignedFaces(ctx context.Context) ([]Face, error)
	LinkFaceToPerson(ctx context.Context, faceID int64, personID int64) error

	CreatePerson(ctx context.Context, name string) (int64, error)
	RenamePerson(ctx context.Context, personID int64, name string) error
	// DeletePerson removes the person row; implementations must null
	// person_id on its faces rather than deleting them (§9 cyclic-graph
	// hazard: Face -> Person is ON DELETE SET NULL).
	DeletePerson(ctx context.Context, personID int64) error

	CreateFaceCluster(ctx context.Context, faceIDs []int64) (int64, error)
	ListFaceClusters(ctx context.Context) ([]FaceCluster, error)
	DeleteFaceClusters(ctx context.Context) error

	MarkScanned(ctx context.Context, photoID int64, faceCount int) error
	IsScanned(ctx context.Context, photoID int64) (bool, error)
}

// SimilarityStore covers DuplicateEngine's transient group persistence
// (§3, §4.1, §4.7).
type SimilarityStore interface {
	CreateSimilarityGroup(ctx context.Context, kind SimilarityGroupKind, photoIDs []int64) (int64, error)
	ListSimilarityGroups(ctx context.Context, kind SimilarityGroupKind) ([]SimilarityGroup, error)
	// DeleteAllSimilarityGroups clears all groups of a kind so
	// DuplicateEngine can rebuild from scratch on demand (§4.7: transient).
	DeleteAllSimilarityGroups(ctx context.Context, kind SimilarityGroupKind) error
}

// TaskStore covers the durable task queue (§3, §4.1, §4.9).
type TaskStore interface {
	CreateTask(ctx context.Context, t ScheduledTask) (int64, error)
	GetTask(ctx context.Context, id int64) (*ScheduledTask, error)
	// ClaimDue atomically selects and transitions at most one eligible
	// pending task to running, stamping started_at, per §4.9's claiming
	// algorithm. Returns nil, nil when nothing is due.
	ClaimDue(ctx context.Context, now int64) (*ScheduledTask, error)
	SetStatus(ctx context.Context, id int64, status TaskStatus, errMsg string) error
	ListOverdue(ctx context.Context, now int64) ([]ScheduledTask, error)
	ListPending(ctx context.Context) ([]ScheduledTask, error)
	Cancel(ctx context.Context, id int64) error
	// ReapStaleRunning fails any "running" row whose started_at predates
	// now-staleAfter, recovering from an executor that panicked mid-task
	// without a graceful shutdown (§4.9 Failure semantics, SPEC_FULL.md D.4).
	ReapStaleRunning(ctx context.Context, now int64, staleAfterSeconds int64) (int, error)
}

// DirectoryPromptStore covers the per-directory LLM prompt override (§3).
type DirectoryPromptStore interface {
	GetDirectoryPrompt(ctx context.Context, directory string) (string, error)
	SetDirectoryPrompt(ctx context.Context, directory, prompt string) error
}

// Store is the full backend-agnostic contract (§4.1). Both the sqlite and
// postgres packages implement it; callers never see which is active.
type Store interface {
	PhotoReader
	PhotoWriter
	EmbeddingStore
	FaceStore
	SimilarityStore
	TaskStore
	DirectoryPromptStore

	// Backend names which concrete implementation is active, for logging
	// only — never branched on by callers (§9: avoid leaking backend
	// types into callers).
	Backend() string
	Close() error
}
