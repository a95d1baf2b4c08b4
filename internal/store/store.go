// Package store records backend health checks in SQLite so the last healthy
// backend survives process restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/usestring/formsense/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS backends (
	kind       TEXT    NOT NULL,
	host       TEXT    NOT NULL,
	port       INTEGER NOT NULL,
	healthy    INTEGER NOT NULL,
	endpoint   TEXT    NOT NULL DEFAULT '',
	last_error TEXT    NOT NULL DEFAULT '',
	checked_at INTEGER NOT NULL,
	scan_order INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (kind, host, port)
);
CREATE INDEX IF NOT EXISTS idx_backends_healthy ON backends (healthy, checked_at);
`

// Record is the stored state of one backend candidate.
type Record struct {
	Kind      types.BackendKind `json:"kind"`
	Host      string            `json:"host"`
	Port      int               `json:"port"`
	Healthy   bool              `json:"healthy"`
	Endpoint  string            `json:"endpoint,omitempty"`
	LastError string            `json:"lastError,omitempty"`
	CheckedAt time.Time         `json:"checkedAt"`
}

// Store persists backend health.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Option is a functional option for configuring the Store.
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (creating if needed) the database at path. ":memory:" gives a
// private in-memory database.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection keeps an in-memory database alive and serializes writers.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting pragma %q: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveHealth upserts one record per result. Results saved together share a
// timestamp and keep their scan order.
func (s *Store) SaveHealth(ctx context.Context, results []types.HealthResult) error {
	if len(results) == 0 {
		return nil
	}
	checkedAt := s.now().UnixMilli()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backends (kind, host, port, healthy, endpoint, last_error, checked_at, scan_order)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (kind, host, port) DO UPDATE SET
			healthy = excluded.healthy,
			endpoint = excluded.endpoint,
			last_error = excluded.last_error,
			checked_at = excluded.checked_at,
			scan_order = excluded.scan_order`)
	if err != nil {
		return fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for i, r := range results {
		healthy := 0
		if r.Healthy {
			healthy = 1
		}
		if _, err := stmt.ExecContext(ctx, string(r.Kind), r.Host, r.Port, healthy, r.Endpoint, r.Error, checkedAt, i); err != nil {
			return fmt.Errorf("saving %s:%s:%d: %w", r.Kind, r.Host, r.Port, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %w", err)
	}
	return nil
}

// Active returns the most recently checked healthy backend. Among backends
// checked in the same run, the first in scan order wins.
func (s *Store) Active(ctx context.Context) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT kind, host, port, healthy, endpoint, last_error, checked_at
		FROM backends
		WHERE healthy = 1
		ORDER BY checked_at DESC, scan_order ASC
		LIMIT 1`)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("querying active backend: %w", err)
	}
	return r, true, nil
}

// List returns every stored record, most recent first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, host, port, healthy, endpoint, last_error, checked_at
		FROM backends
		ORDER BY checked_at DESC, scan_order ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing backends: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning backend: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var (
		r         Record
		kind      string
		healthy   int
		checkedAt int64
	)
	if err := sc.Scan(&kind, &r.Host, &r.Port, &healthy, &r.Endpoint, &r.LastError, &checkedAt); err != nil {
		return Record{}, err
	}
	r.Kind = types.BackendKind(kind)
	r.Healthy = healthy == 1
	r.CheckedAt = time.UnixMilli(checkedAt).UTC()
	return r, nil
}
