// Package sessionstore persists in-flight resumable upload sessions in a
// local SQLite database. A recorded session URL and confirmed byte offset
// let a later invocation reconstruct and continue a transfer instead of
// starting over.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// StaleSessionAge is the default TTL for persisted sessions. Drive upload
// sessions expire server-side within about a week; older rows are dead.
const StaleSessionAge = 7 * 24 * time.Hour

const dirPerms = 0o700

// Record is one persisted upload session, keyed by the absolute local
// file path.
type Record struct {
	LocalPath  string
	SessionURL string
	Offset     int64
	Size       int64
	UpdatedAt  time.Time
}

// Store manages upload session persistence. The database uses the
// sole-writer pattern (one connection) — CLI invocations are sequential,
// contention is not a concern.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the session database at dbPath and runs
// pending migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerms); err != nil {
		return nil, fmt.Errorf("sessionstore: creating data dir: %w", err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: opening database %s: %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("session store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the session record for rec.LocalPath.
func (s *Store) Save(ctx context.Context, rec *Record) error {
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO upload_sessions (local_path, session_url, byte_offset, size, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(local_path) DO UPDATE SET
			session_url = excluded.session_url,
			byte_offset = excluded.byte_offset,
			size        = excluded.size,
			updated_at  = excluded.updated_at`,
		rec.LocalPath, rec.SessionURL, rec.Offset, rec.Size, updatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("sessionstore: saving session for %s: %w", rec.LocalPath, err)
	}

	s.logger.Debug("session saved",
		slog.String("local_path", rec.LocalPath),
		slog.Int64("offset", rec.Offset),
	)

	return nil
}

// Load reads the session record for the given local path.
// Returns nil, nil when no session is recorded.
func (s *Store) Load(ctx context.Context, localPath string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT local_path, session_url, byte_offset, size, updated_at
		FROM upload_sessions WHERE local_path = ?`,
		localPath,
	)

	var (
		rec       Record
		updatedAt int64
	)

	err := row.Scan(&rec.LocalPath, &rec.SessionURL, &rec.Offset, &rec.Size, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("sessionstore: loading session for %s: %w", localPath, err)
	}

	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()

	return &rec, nil
}

// Delete removes the session record for the given local path.
// No error if none exists.
func (s *Store) Delete(ctx context.Context, localPath string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM upload_sessions WHERE local_path = ?`, localPath,
	); err != nil {
		return fmt.Errorf("sessionstore: deleting session for %s: %w", localPath, err)
	}

	return nil
}

// CleanStale removes sessions not updated within maxAge and returns the
// number of rows deleted.
func (s *Store) CleanStale(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM upload_sessions WHERE updated_at < ?`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("sessionstore: cleaning stale sessions: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sessionstore: counting cleaned sessions: %w", err)
	}

	if n > 0 {
		s.logger.Info("cleaned stale upload sessions", slog.Int64("count", n))
	}

	return int(n), nil
}
