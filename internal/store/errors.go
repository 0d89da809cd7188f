package store

import "errors"

// Error taxonomy per spec.md §7. Callers use errors.Is against these
// sentinels; backends wrap them with %w so context survives.
var (
	// ErrBusy is transient backend contention (lock timeout, pool
	// exhaustion); retried with bounded backoff by the caller.
	ErrBusy = errors.New("store: busy")
	// ErrConflict is a uniqueness or foreign-key violation; not retried.
	ErrConflict = errors.New("store: conflict")
	// ErrCorrupt is an unrecoverable backend state; fatal.
	ErrCorrupt = errors.New("store: corrupt")
	// ErrNotFound is returned by Get-style lookups that found no row.
	ErrNotFound = errors.New("store: not found")
)
