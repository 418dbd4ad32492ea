// Package store persists projects, samples, and settings in SQLite and writes
// sample files to disk.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a project or sample id has no row.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite project database.
type Store struct {
	db    *sql.DB
	log   *slog.Logger
	clock func() time.Time
	newID func() string
}

// Open creates the database at path if needed and applies the schema.
func Open(ctx context.Context, path string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping sqlite: %w", err)
	}

	s := &Store{db: db, log: log, clock: time.Now, newID: uuid.NewString}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: init schema: %w", err)
	}
	log.Debug("project store opened", slog.String("path", path))
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	ddl := `
CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    voice_actor TEXT NOT NULL,
    emotion TEXT,
    description TEXT,
    author_id TEXT,
    storage_type TEXT DEFAULT 'Local',
    storage_path TEXT,
    s3_url TEXT,
    s3_bucket TEXT,
    s3_root_folder TEXT,
    s3_key TEXT,
    date_created TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS samples (
    id TEXT PRIMARY KEY,
    project_id TEXT NOT NULL,
    rating INTEGER,
    file_path TEXT NOT NULL,
    file_path24 TEXT NOT NULL,
    length_seconds INTEGER NOT NULL,
    size_bytes INTEGER NOT NULL,
    text_said TEXT NOT NULL,
    ground_truth TEXT NOT NULL,
    date_recorded TEXT NOT NULL,
    waveform_path TEXT NOT NULL,
    FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_samples_project ON samples(project_id, date_recorded);
CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT
);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveFile writes data to path, creating parent directories.
func (s *Store) SaveFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("store: create dir for %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("store: write %s: %w", path, err)
	}
	s.log.Debug("file saved", slog.String("path", path), slog.Int("bytes", len(data)))
	return nil
}

func (s *Store) now() string {
	return s.clock().UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return ts
}
