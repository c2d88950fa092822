// Package sqlite implements driven.ArchiveCache on top of a SQLite
// database: a single Store wrapping *sql.DB, embed.FS migrations run at
// startup, and clean-miss translation on lookup.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/mussolene/1c-hbk-helper/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/mussolene/1c-hbk-helper/internal/core/domain"
)

// Store is a SQLite-backed implementation of driven.ArchiveCache.
type Store struct {
	db   *sql.DB
	path string
}

// NewStore opens (creating if needed) the ingest cache database at
// dataDir/ingest-cache.db and runs pending migrations.
func NewStore(dataDir string) (*Store, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".1c-hbk-helper", "data")
	}
	if err := os.MkdirAll(dataDir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "ingest-cache.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening ingest cache database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) migrate(fsys embed.FS) error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".up.sql") {
			upFiles = append(upFiles, entry.Name())
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}
		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("recording migration %s: %w", name, err)
		}
	}
	return nil
}

// Lookup returns the cached record for hash, or nil with no error on a
// clean miss.
func (s *Store) Lookup(ctx context.Context, hash string) (*domain.ArchiveRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT hash, status, version, language, topic_count, indexed_at
		FROM archives WHERE hash = ?
	`, hash)

	var rec domain.ArchiveRecord
	var indexedAt time.Time
	if err := row.Scan(&rec.Hash, &rec.Status, &rec.Version, &rec.Language, &rec.TopicCount, &indexedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning archive cache row: %w", err)
	}
	rec.IndexedAt = indexedAt
	return &rec, nil
}

// MarkIndexed records an archive as successfully indexed.
func (s *Store) MarkIndexed(ctx context.Context, hash string, meta domain.ArchiveRecord) error {
	meta.Hash = hash
	meta.Status = domain.ArchiveStatusIndexed
	if meta.IndexedAt.IsZero() {
		meta.IndexedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archives (hash, status, version, language, topic_count, indexed_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET
			status = excluded.status,
			version = excluded.version,
			language = excluded.language,
			topic_count = excluded.topic_count,
			indexed_at = excluded.indexed_at
	`, meta.Hash, meta.Status, meta.Version, meta.Language, meta.TopicCount, meta.IndexedAt)
	if err != nil {
		return fmt.Errorf("marking archive indexed: %w", err)
	}
	return nil
}

// MarkFailed appends a failure record for path. Failures never overwrite
// an existing indexed record for the same archive.
func (s *Store) MarkFailed(ctx context.Context, path, reason string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archive_failures (path, reason, happened_at) VALUES (?, ?, ?)
	`, path, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("recording archive failure: %w", err)
	}
	return nil
}

// RecentFailures returns the most recent failures, newest first.
func (s *Store) RecentFailures(ctx context.Context, limit int) ([]domain.FailureRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, reason, happened_at FROM archive_failures
		ORDER BY happened_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying archive failures: %w", err)
	}
	defer rows.Close()

	var out []domain.FailureRecord
	for rows.Next() {
		var f domain.FailureRecord
		if err := rows.Scan(&f.Path, &f.Reason, &f.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning archive failure: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// EraseAll wipes both the indexed and failure tables, used by
// `ingest --erase-cache` to force a full re-ingest.
func (s *Store) EraseAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning erase transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM archives"); err != nil {
		return fmt.Errorf("erasing archives: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM archive_failures"); err != nil {
		return fmt.Errorf("erasing archive failures: %w", err)
	}
	return tx.Commit()
}
