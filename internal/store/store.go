// Package store keeps saved artifacts on disk and indexes them in SQLite.
//
// Layout under the storage directory:
//
//	index.db                     artifact index
//	.lock                        held while writing
//	<id>/payload.<webm|ogg>      recording payload
//	<id>/snapshots/NNNN.png      sampled stills
//	<id>/artifact.json           artifact metadata
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"

	"github.com/thesyncim/mediacapture/capture"
)

var (
	// ErrNotFound is returned when no artifact has the requested ID.
	ErrNotFound = errors.New("artifact not found")
	// ErrExists is returned when saving an ID that is already stored.
	ErrExists = errors.New("artifact already exists")
)

const schema = `
CREATE TABLE IF NOT EXISTS artifacts (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    kind           TEXT NOT NULL,
    mime_type      TEXT,
    payload_path   TEXT,
    payload_size   INTEGER NOT NULL DEFAULT 0,
    snapshot_count INTEGER NOT NULL DEFAULT 0,
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    source_url     TEXT,
    created_at     INTEGER NOT NULL -- unix nanoseconds
);
CREATE INDEX IF NOT EXISTS idx_artifacts_created_at ON artifacts(created_at);
`

// Record is one indexed artifact.
type Record struct {
	ID            string
	Name          string
	Kind          string
	MIMEType      string
	Dir           string
	PayloadPath   string
	PayloadSize   int64
	SnapshotCount int
	Duration      time.Duration
	SourceURL     string
	CreatedAt     time.Time
}

// Store manages artifact persistence.
type Store struct {
	db   *sql.DB
	dir  string
	mu   sync.Mutex // flock does not exclude goroutines sharing one handle
	lock *flock.Flock
}

// Open creates dir if needed and opens its index.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "index.db"))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{
		db:   db,
		dir:  dir,
		lock: flock.New(filepath.Join(dir, ".lock")),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Dir returns the storage directory.
func (s *Store) Dir() string { return s.dir }

// Save writes the artifact's files and indexes it. Concurrent writers, in
// this process or another, are serialized through the lock file.
func (s *Store) Save(ctx context.Context, art *capture.Artifact) (*Record, error) {
	if art == nil || art.ID == "" {
		return nil, errors.New("save: artifact has no id")
	}
	if filepath.Base(art.ID) != art.ID || art.ID == "." || art.ID == ".." {
		return nil, fmt.Errorf("save: invalid artifact id %q", art.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return nil, errors.New("acquire store lock: not acquired")
	}
	defer s.lock.Unlock()

	rec := &Record{
		ID:            art.ID,
		Name:          art.Name,
		Kind:          art.Kind,
		MIMEType:      art.MIMEType,
		Dir:           filepath.Join(s.dir, art.ID),
		PayloadSize:   int64(len(art.Payload)),
		SnapshotCount: len(art.Snapshots),
		Duration:      art.Duration,
		SourceURL:     art.SourceURL,
		CreatedAt:     art.Timestamp.UTC(),
	}

	var exists int
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM artifacts WHERE id = ?`, rec.ID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("check artifact: %w", err)
	}
	if exists > 0 {
		return nil, fmt.Errorf("%w: %s", ErrExists, rec.ID)
	}
	// Mkdir fails on an existing directory, so cleanup below only ever
	// removes what this call created.
	if err := os.Mkdir(rec.Dir, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("%w: directory %s", ErrExists, rec.Dir)
		}
		return nil, fmt.Errorf("create artifact directory: %w", err)
	}
	if err := s.writeFiles(rec, art); err != nil {
		_ = os.RemoveAll(rec.Dir)
		return nil, err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (
            id, name, kind, mime_type, payload_path, payload_size,
            snapshot_count, duration_ms, source_url, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID,
		rec.Name,
		rec.Kind,
		nullableString(rec.MIMEType),
		nullableString(rec.PayloadPath),
		rec.PayloadSize,
		rec.SnapshotCount,
		rec.Duration.Milliseconds(),
		nullableString(rec.SourceURL),
		rec.CreatedAt.UnixNano(),
	)
	if err != nil {
		_ = os.RemoveAll(rec.Dir)
		return nil, fmt.Errorf("insert artifact: %w", err)
	}
	return rec, nil
}

func (s *Store) writeFiles(rec *Record, art *capture.Artifact) error {
	if len(art.Payload) > 0 {
		rec.PayloadPath = filepath.Join(rec.Dir, "payload."+art.Extension())
		if err := os.WriteFile(rec.PayloadPath, art.Payload, 0o644); err != nil {
			return fmt.Errorf("write payload: %w", err)
		}
	}

	if len(art.Snapshots) > 0 {
		snapDir := filepath.Join(rec.Dir, "snapshots")
		if err := os.MkdirAll(snapDir, 0o755); err != nil {
			return fmt.Errorf("create snapshot directory: %w", err)
		}
		for i, snap := range art.Snapshots {
			name := filepath.Join(snapDir, fmt.Sprintf("%04d.png", i))
			if err := os.WriteFile(name, snap.Image, 0o644); err != nil {
				return fmt.Errorf("write snapshot %d: %w", i, err)
			}
		}
	}

	meta, err := json.MarshalIndent(art, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact: %w", err)
	}
	if err := os.WriteFile(filepath.Join(rec.Dir, "artifact.json"), append(meta, '\n'), 0o644); err != nil {
		return fmt.Errorf("write artifact.json: %w", err)
	}
	return nil
}

// List returns every artifact, newest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate artifacts: %w", err)
	}
	return out, nil
}

// Get fetches one artifact by ID.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	rec, err := s.scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

const selectColumns = `SELECT id, name, kind, mime_type, payload_path, payload_size,
    snapshot_count, duration_ms, source_url, created_at FROM artifacts`

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scan(row scanner) (*Record, error) {
	var (
		rec                          Record
		mime, payloadPath, sourceURL sql.NullString
		durationMs                   int64
		createdAt                    int64
	)
	if err := row.Scan(
		&rec.ID, &rec.Name, &rec.Kind, &mime, &payloadPath, &rec.PayloadSize,
		&rec.SnapshotCount, &durationMs, &sourceURL, &createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan artifact: %w", err)
	}
	rec.MIMEType = mime.String
	rec.PayloadPath = payloadPath.String
	rec.SourceURL = sourceURL.String
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.Dir = filepath.Join(s.dir, rec.ID)
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	return &rec, nil
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}
	return v
}
