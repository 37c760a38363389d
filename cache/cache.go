// Package cache implements the local duplicate cache: a sqlite table mapping
// a path-derived key to the archive's cross-system ID and upload state.
//
// The cache is shared process-wide. Many pipeline workers write to it
// concurrently, so every statement is retried with exponential backoff when
// sqlite reports the database busy or locked; without that, bursts of
// concurrent upserts would intermittently fail uploads that fully succeeded
// against the server.
package cache

import (
	"context"
	"crypto/md5"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrBusy is returned when the store stayed locked past the retry ceiling.
var ErrBusy = errors.New("cache store busy")

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("cache entry not found")

const (
	// retryBaseDelay is the first backoff sleep on a busy store; it doubles
	// on each subsequent attempt.
	retryBaseDelay = 2 * time.Second
	// maxRetries bounds the busy retries. Generous on purpose: giving up
	// here desynchronizes the cache from the server.
	maxRetries = 16
)

const schema = `
CREATE TABLE IF NOT EXISTS archive_cache (
  path_md5   TEXT PRIMARY KEY,
  archive_id TEXT,
  integrity  TEXT,
  mtime_ns   INTEGER,
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL
);
`

// Entry is one cached upload record.
type Entry struct {
	// Key is the hex md5 of the archive's local path string. Stable across
	// retries: it does not depend on file content, so the entry is findable
	// before any hashing happens.
	Key string
	// ArchiveID is the cross-system ID recorded at upload time.
	ArchiveID string
	// Integrity is an optional classification from the integrity checker.
	Integrity string
	// MtimeNS is the file's modification time when the entry was written.
	// A differing current mtime means the file changed since upload.
	MtimeNS int64
	// CreatedAt and UpdatedAt are unix-nano bookkeeping timestamps.
	CreatedAt int64
	UpdatedAt int64
}

// Key derives the cache lookup key for a local path.
func Key(path string) string {
	sum := md5.Sum([]byte(path))
	return hex.EncodeToString(sum[:])
}

// Store is the sqlite-backed duplicate cache.
type Store struct {
	db *sql.DB

	// OnBusyRetry, when set, is called once per backoff retry on a locked
	// store. Set before the store is shared between goroutines.
	OnBusyRetry func()
}

// Open opens (and if needed creates) the cache database at path.
// Use ":memory:" for an ephemeral store in tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open cache db %s: %w", path, err)
	}
	s := &Store{db: db}
	if err := s.retryWrite(context.Background(), schema); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing database handle. The schema must already exist
// or be created by the caller; used by tests sharing a handle.
func NewWithDB(db *sql.DB) (*Store, error) {
	s := &Store{db: db}
	if err := s.retryWrite(context.Background(), schema); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the entry for key, or ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT path_md5, COALESCE(archive_id, ''), COALESCE(integrity, ''), COALESCE(mtime_ns, 0), created_at, updated_at
FROM archive_cache WHERE path_md5 = ?`, key)

	var e Entry
	err := row.Scan(&e.Key, &e.ArchiveID, &e.Integrity, &e.MtimeNS, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	return &e, nil
}

// Exists reports whether an entry exists for key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Upsert inserts or fully overwrites the entry for e.Key. Idempotent: the
// same entry applied twice leaves the store in the same observable state.
func (s *Store) Upsert(ctx context.Context, e *Entry) error {
	now := time.Now().UnixNano()
	created := e.CreatedAt
	if created == 0 {
		created = now
	}
	return s.retryWrite(ctx, `
INSERT INTO archive_cache (path_md5, archive_id, integrity, mtime_ns, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(path_md5) DO UPDATE SET
  archive_id = excluded.archive_id,
  integrity  = excluded.integrity,
  mtime_ns   = excluded.mtime_ns,
  updated_at = excluded.updated_at`,
		e.Key, e.ArchiveID, e.Integrity, e.MtimeNS, created, now)
}

// Delete removes the entry for key. Removing an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.retryWrite(ctx, `DELETE FROM archive_cache WHERE path_md5 = ?`, key)
}

// Clear removes every entry but keeps the table.
func (s *Store) Clear(ctx context.Context) error {
	return s.retryWrite(ctx, `DELETE FROM archive_cache`)
}

// Drop removes the table entirely.
func (s *Store) Drop(ctx context.Context) error {
	return s.retryWrite(ctx, `DROP TABLE IF EXISTS archive_cache`)
}

// Count returns the number of cached entries.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM archive_cache`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return n, nil
}

// All returns every entry, ordered by key. Used by the cache admin command.
func (s *Store) All(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT path_md5, COALESCE(archive_id, ''), COALESCE(integrity, ''), COALESCE(mtime_ns, 0), created_at, updated_at
FROM archive_cache ORDER BY path_md5`)
	if err != nil {
		return nil, fmt.Errorf("cache list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Key, &e.ArchiveID, &e.Integrity, &e.MtimeNS, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("cache scan: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// retryWrite executes a write statement, retrying with doubling backoff while
// sqlite reports the database busy or locked.
func (s *Store) retryWrite(ctx context.Context, query string, args ...any) error {
	delay := retryBaseDelay
	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if s.OnBusyRetry != nil {
				s.OnBusyRetry()
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		_, lastErr = s.db.ExecContext(ctx, query, args...)
		if lastErr == nil {
			return nil
		}
		if !isBusy(lastErr) {
			return fmt.Errorf("cache write: %w", lastErr)
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrBusy, maxRetries+1, lastErr)
}

// isBusy reports whether err is sqlite's transient busy/locked condition.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "busy")
}
