// Package sqlite implements store.Store over an embedded, single-file
// SQLite database, the way onedrive-go's internal/sync.SQLiteStore wraps
// modernc.org/sqlite with WAL pragmas and a PRAGMA-user_version migration
// runner.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/barrulus/clepho/internal/store"
	_ "modernc.org/sqlite" // pure-Go driver, registers as "sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	walJournalSizeLimit = 67108864 // 64 MiB
	schemaVersion        = 1
	busyRetries          = 5
	busyRetryBaseDelay   = 25 * time.Millisecond
)

// Store implements store.Store over SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open creates (if needed) and opens the database at path, applying
// pragmas and additive migrations. Use ":memory:" for tests.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			// Best-effort: callers normally already created the data dir.
			_ = os.MkdirAll(dir, 0o755)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection avoids SQLITE_BUSY between goroutines sharing
	// one *Store; the Store itself serialises writers above this layer
	// (§5: the writer thread performs serialised transactional batches).
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}
	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite store ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}
	return nil
}

// runMigrations applies embedded SQL migrations in order, tracked via
// PRAGMA user_version, the same approach onedrive-go uses to avoid driver
// compatibility issues between golang-migrate and the pure-Go driver.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	var current int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if current >= schemaVersion {
		return nil
	}
	for v := current + 1; v <= schemaVersion; v++ {
		if err := applyMigration(ctx, db, logger, v); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, db *sql.DB, logger *slog.Logger, version int) error {
	filename := fmt.Sprintf("migrations/%06d_initial_schema.sql", version)
	sqlBytes, err := fs.ReadFile(migrationsFS, filename)
	if err != nil {
		return fmt.Errorf("read migration %d: %w", version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, string(sqlBytes)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("exec migration %d: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", version)); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("stamp version %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}
	logger.Info("applied migration", "version", version)
	return nil
}

func (s *Store) Backend() string { return "sqlite" }

func (s *Store) Close() error { return s.db.Close() }

// classify maps a raw sqlite error to the store error taxonomy (§7).
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint") || strings.Contains(msg, "FOREIGN KEY constraint"):
		return fmt.Errorf("%w: %s", store.ErrConflict, msg)
	case strings.Contains(msg, "database is locked") || strings.Contains(msg, "SQLITE_BUSY"):
		return fmt.Errorf("%w: %s", store.ErrBusy, msg)
	case strings.Contains(msg, "malformed") || strings.Contains(msg, "SQLITE_CORRUPT"):
		return fmt.Errorf("%w: %s", store.ErrCorrupt, msg)
	default:
		return err
	}
}

// withRetry retries a write on ErrBusy with bounded backoff (§4.1 Failure
// semantics: transient lock contention retries with bounded backoff;
// exhaustion surfaces StoreBusy).
func withRetry(fn func() error) error {
	var err error
	delay := busyRetryBaseDelay
	for attempt := 0; attempt < busyRetries; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, store.ErrBusy) {
			return err
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func timeToUnix(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	u := t.Unix()
	return &u
}

func unixToTime(u sql.NullInt64) *time.Time {
	if !u.Valid {
		return nil
	}
	t := time.Unix(u.Int64, 0).UTC()
	return &t
}

func marshalPhotoIDs(ids []int64) (any, error) {
	if ids == nil {
		return nil, nil
	}
	b, err := json.Marshal(ids)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func unmarshalPhotoIDs(raw sql.NullString) ([]int64, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw.String), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
