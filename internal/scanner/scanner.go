// Package scanner implements the ingestion pipeline (§4.5): recursive
// directory walk, per-file classify/extract/hash/upsert/thumbnail, driven
// by a worker pool that feeds a single store-writer goroutine, the way the
// teacher's Sorter fans work out across a semaphore-bounded pool and
// collects results on a channel (internal/sorter/sorter.go).
package scanner

import (
	"bytes"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/barrulus/clepho/internal/hasher"
	"github.com/barrulus/clepho/internal/metadata"
	"github.com/barrulus/clepho/internal/store"
	"github.com/barrulus/clepho/internal/thumbnail"
)

// Outcome classifies a single file's processing result for a ProgressEvent.
type Outcome string

const (
	OutcomeNew        Outcome = "new"
	OutcomeUpdated    Outcome = "updated"
	OutcomeUnchanged  Outcome = "unchanged"
	OutcomeFailed     Outcome = "failed"
	OutcomeSkipped    Outcome = "skipped"
)

// EventKind identifies which field of ProgressEvent is populated.
type EventKind string

const (
	EventStarted   EventKind = "started"
	EventFile      EventKind = "file"
	EventCompleted EventKind = "completed"
	EventCancelled EventKind = "cancelled"
	// EventAborted is the terminal event when a Store write fails mid-scan
	// (§4.5/§7: "a Store failure mid-pipeline is fatal"). Err on the event
	// holds the failure that triggered the abort.
	EventAborted EventKind = "aborted"
)

// Counts tallies per-outcome totals, reported on EventCompleted/EventCancelled/EventAborted.
type Counts struct {
	New       int
	Updated   int
	Unchanged int
	Failed    int
	Skipped   int
}

// ProgressEvent is one element of the finite sequence §4.5 describes:
// {Started}, {File}*, {Completed|Cancelled|Aborted}.
type ProgressEvent struct {
	Kind EventKind

	// EventStarted
	TotalEstimate int

	// EventFile
	Path    string
	Outcome Outcome

	// EventFile (per-file failure) / EventAborted (the Store failure that
	// triggered it)
	Err error

	// EventCompleted / EventCancelled / EventAborted
	Counts Counts
}

// Options configures a single Scan call.
type Options struct {
	ImageExtensions []string // case-insensitive, leading dot, e.g. ".jpg"
	IncludeDotfiles bool
	Workers         int // 0 means runtime.NumCPU()
	WriterBatchSize int // 0 means 64, per §5

	// Cancel, if non-nil, is polled between files (not mid-file), per §4.5.
	Cancel <-chan struct{}
}

// Scanner walks a directory tree, ingesting new and modified images into
// Store and populating the thumbnail cache.
type Scanner struct {
	store  store.Store
	thumbs *thumbnail.Cache
}

// New returns a Scanner writing Photo rows to st and thumbnails to thumbs.
func New(st store.Store, thumbs *thumbnail.Cache) *Scanner {
	return &Scanner{store: st, thumbs: thumbs}
}

// fileJob is the unit of work a discovery goroutine sends to the worker
// pool, and workResult the per-file result a worker sends to the writer.
type fileJob struct {
	path string
	info fs.FileInfo
}

type workResult struct {
	path    string
	outcome Outcome
	err     error
	upsert  *store.UpsertPhotoParams // nil when outcome needs no write
}

// Scan recursively walks root and returns a channel of ProgressEvents. The
// channel is closed after the terminal Completed/Cancelled/Aborted event. Callers
// drain it; Scan itself runs the pipeline on background goroutines.
func (s *Scanner) Scan(ctx context.Context, root string, opts Options) <-chan ProgressEvent {
	events := make(chan ProgressEvent, 1)

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	batchSize := opts.WriterBatchSize
	if batchSize <= 0 {
		batchSize = 64
	}
	go func() {
		defer close(events)

		jobs := make(chan fileJob, workers*2)
		results := make(chan workResult, workers*2)

		// Discovery streams into jobs concurrently with workers draining
		// it, so the total isn't known up front; TotalEstimate of -1
		// signals "unknown, still discovering" to subscribers.
		events <- ProgressEvent{Kind: EventStarted, TotalEstimate: -1}

		var discoverErr error
		var discoverWG sync.WaitGroup
		discoverWG.Add(1)
		go func() {
			defer discoverWG.Done()
			defer close(jobs)
			_, discoverErr = walk(root, opts, jobs, opts.Cancel)
		}()

		var workersWG sync.WaitGroup
		for i := 0; i < workers; i++ {
			workersWG.Add(1)
			go func() {
				defer workersWG.Done()
				for job := range jobs {
					if isCancelled(opts.Cancel) {
						results <- workResult{path: job.path, outcome: OutcomeSkipped}
						continue
					}
					results <- s.processFile(ctx, job)
				}
			}()
		}

		go func() {
			workersWG.Wait()
			close(results)
		}()

		counts := Counts{}
		cancelled := false
		aborted := false
		var abortErr error
		batch := make([]workResult, 0, batchSize)
		flush := func() {
			for i := range batch {
				r := &batch[i]
				if aborted {
					// The Store is considered broken once one write fails
					// (§4.5/§7); stop dispatching further batches to it and
					// account for the rest of this one as skipped.
					r.outcome = OutcomeSkipped
					counts.Skipped++
				} else if s.writeResult(ctx, r, &counts) {
					aborted = true
					abortErr = r.err
				}
				events <- ProgressEvent{Kind: EventFile, Path: r.path, Outcome: r.outcome, Err: r.err}
			}
			batch = batch[:0]
		}

		for r := range results {
			if isCancelled(opts.Cancel) {
				cancelled = true
			}
			batch = append(batch, r)
			if len(batch) >= batchSize {
				flush()
			}
		}
		flush()
		discoverWG.Wait()

		if discoverErr != nil {
			events <- ProgressEvent{Kind: EventFile, Path: root, Outcome: OutcomeFailed, Err: discoverErr}
		}

		switch {
		case aborted:
			events <- ProgressEvent{Kind: EventAborted, Counts: counts, Err: abortErr}
		case cancelled:
			events <- ProgressEvent{Kind: EventCancelled, Counts: counts}
		default:
			events <- ProgressEvent{Kind: EventCompleted, Counts: counts}
		}
	}()

	return events
}

func isCancelled(c <-chan struct{}) bool {
	if c == nil {
		return false
	}
	select {
	case <-c:
		return true
	default:
		return false
	}
}

// walk lists files under root recursively, filtering to the configured
// extension set (case-insensitive) and skipping dotfiles unless opted in.
// It pushes every eligible file onto jobs, checking for cancellation
// between entries, and returns the count pushed.
func walk(root string, opts Options, jobs chan<- fileJob, cancel <-chan struct{}) (int, error) {
	exts := make(map[string]bool, len(opts.ImageExtensions))
	for _, e := range opts.ImageExtensions {
		exts[strings.ToLower(e)] = true
	}

	total := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // permission errors etc are per-file, not fatal (§4.5)
		}
		if isCancelled(cancel) {
			return filepath.SkipAll
		}
		if d.IsDir() {
			return nil
		}
		base := filepath.Base(path)
		if !opts.IncludeDotfiles && strings.HasPrefix(base, ".") {
			return nil
		}
		if !exts[strings.ToLower(filepath.Ext(base))] {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		jobs <- fileJob{path: path, info: info}
		total++
		return nil
	})
	return total, err
}

// processFile runs steps 1-6 of §4.5 for one file: mtime/size unchanged
// check, streaming hash, header+EXIF decode, perceptual hash, thumbnail.
// Store access (step 2's existence check and step 7's upsert) is read-only
// here; the write happens on the single writer goroutine in Scan.
func (s *Scanner) processFile(ctx context.Context, job fileJob) workResult {
	existing, err := s.store.GetByPath(ctx, job.path)
	if err != nil && err != store.ErrNotFound {
		return workResult{path: job.path, outcome: OutcomeFailed, err: fmt.Errorf("scanner: lookup %s: %w", job.path, err)}
	}

	mtime := job.info.ModTime().Unix()
	size := job.info.Size()
	if existing != nil && existing.ModifiedAt.Unix() == mtime && existing.SizeBytes == size {
		return workResult{path: job.path, outcome: OutcomeUnchanged}
	}

	data, err := os.ReadFile(job.path)
	if err != nil {
		return workResult{path: job.path, outcome: OutcomeFailed, err: fmt.Errorf("scanner: read %s: %w", job.path, err)}
	}

	md5Hex, sha256Hex, err := hasher.StreamHashes(bytes.NewReader(data))
	if err != nil {
		return workResult{path: job.path, outcome: OutcomeFailed, err: fmt.Errorf("scanner: hash %s: %w", job.path, err)}
	}

	meta, decodeErr := metadata.ExtractBytes(data)

	var pHashHex string
	if decodeErr == nil {
		if h, err := hasher.PHash(data); err == nil {
			pHashHex = hasher.PHashHex(h)
		}
	}

	if s.thumbs != nil && decodeErr == nil {
		if _, err := s.thumbs.Generate(sha256Hex, data, false); err != nil {
			// A thumbnail failure is dropped: it is not reported on the
			// event and does not fail the file; the Photo row still gets
			// written.
		}
	}

	outcome := OutcomeNew
	if existing != nil {
		outcome = OutcomeUpdated
	}

	params := &store.UpsertPhotoParams{
		Path:           job.path,
		SizeBytes:      size,
		ModifiedAt:     mtime,
		ScannedAt:      time.Now().Unix(),
		Width:          meta.Width,
		Height:         meta.Height,
		Format:         meta.Format,
		EXIF:           meta.EXIF,
		RawEXIF:        meta.RawEXIF,
		MD5:            md5Hex,
		SHA256:         sha256Hex,
		PerceptualHash: pHashHex,
	}

	var fileErr error
	if decodeErr != nil {
		fileErr = fmt.Errorf("scanner: decode %s: %w", job.path, decodeErr)
	}

	return workResult{path: job.path, outcome: outcome, err: fileErr, upsert: params}
}

// writeResult performs step 7 of §4.5 on the single writer goroutine and
// tallies the outcome. It reports true when the Store write itself failed:
// that is fatal to the whole scan (§4.5/§7: "a Store failure mid-pipeline
// is fatal and surfaces ScanAborted"), and Scan stops dispatching further
// batches once this fires. A per-file failure upstream of the write (a
// decode or hash error, already recorded as OutcomeFailed) is not a Store
// failure and does not abort the scan.
func (s *Scanner) writeResult(ctx context.Context, r *workResult, counts *Counts) (aborted bool) {
	switch r.outcome {
	case OutcomeUnchanged:
		counts.Unchanged++
		return false
	case OutcomeFailed:
		counts.Failed++
		return false
	case OutcomeSkipped:
		counts.Skipped++
		return false
	}

	if r.upsert == nil {
		counts.Failed++
		return false
	}
	if _, err := s.store.UpsertPhoto(ctx, *r.upsert); err != nil {
		r.outcome = OutcomeFailed
		r.err = fmt.Errorf("scanner: upsert %s: %w", r.path, err)
		counts.Failed++
		return true
	}

	switch r.outcome {
	case OutcomeNew:
		counts.New++
	case OutcomeUpdated:
		counts.Updated++
	}
	return false
}
