// Package postgres implements store.Store over a networked PostgreSQL
// database via database/sql and lib/pq, the way the teacher's
// internal/database/postgres package wraps a connection pool with its own
// embedded-migration runner.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/barrulus/clepho/internal/store"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	busyRetries        = 5
	busyRetryBaseDelay = 25 * time.Millisecond
	staleReapErrorMsg  = "reaped: executor did not report completion"
)

// Store implements store.Store against PostgreSQL.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Config is the subset of connection parameters the backend needs; the
// caller supplies these from config.DatabaseConfig.
type Config struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects, verifies reachability, and applies pending migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.URL == "" {
		return nil, errors.New("postgres: database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 10
	}
	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("postgres store ready")
	return s, nil
}

// migrate applies any embedded *.sql file not already recorded in
// schema_migrations, in filename order, one transaction per file.
func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("postgres: create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("postgres: query applied migrations: %w", err)
	}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return fmt.Errorf("postgres: scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("postgres: read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		if applied[file] {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + file)
		if err != nil {
			return fmt.Errorf("postgres: read migration %s: %w", file, err)
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("postgres: begin migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("postgres: exec migration %s: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, file); err != nil {
			tx.Rollback()
			return fmt.Errorf("postgres: record migration %s: %w", file, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("postgres: commit migration %s: %w", file, err)
		}
		s.logger.Info("applied migration", "file", file)
	}
	return nil
}

func (s *Store) Backend() string { return "postgresql" }

func (s *Store) Close() error { return s.db.Close() }

// classify maps a lib/pq error to the store error taxonomy (§7).
func classify(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "violates foreign key constraint"):
		return fmt.Errorf("%w: %s", store.ErrConflict, msg)
	case strings.Contains(msg, "too many connections") || strings.Contains(msg, "connection refused") || strings.Contains(msg, "deadlock detected"):
		return fmt.Errorf("%w: %s", store.ErrBusy, msg)
	case strings.Contains(msg, "invalid page") || strings.Contains(msg, "corrupt"):
		return fmt.Errorf("%w: %s", store.ErrCorrupt, msg)
	default:
		return err
	}
}

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

func timeToUnixPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Unix()
}

func unixToTime(u sql.NullInt64) *time.Time {
	if !u.Valid {
		return nil
	}
	t := time.Unix(u.Int64, 0).UTC()
	return &t
}
