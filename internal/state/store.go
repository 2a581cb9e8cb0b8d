package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// ErrLocked indicates another run holds the state database.
var ErrLocked = errors.New("state database is in use by another run")

// Status values stored per entry.
const (
	StatusUploaded  = "uploaded"
	StatusDuplicate = "duplicate"
)

// Record is one remembered upload.
type Record struct {
	ArchivePath string
	AssetID     string
	Digest      string
	Status      string
	UploadedAt  time.Time
}

// Store remembers uploaded archive entries across runs.
type Store struct {
	db   *sql.DB
	path string
	lock *flock.Flock
}

// Open creates or opens the database at path and takes an exclusive lock on
// path+".lock".
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	lock := flock.New(path + ".lock")
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock state database: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		_ = lock.Unlock()
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			_ = lock.Unlock()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path, lock: lock}
	if err := store.initSchema(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database location.
func (s *Store) Path() string {
	return s.path
}

// Seen reports whether the archive entry was already uploaded.
func (s *Store) Seen(ctx context.Context, archivePath string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM uploads WHERE archive_path = ?", archivePath).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query upload %q: %w", archivePath, err)
	}
	return count > 0, nil
}

// FindDigest returns an earlier upload with identical content.
func (s *Store) FindDigest(ctx context.Context, digest string) (Record, bool, error) {
	if digest == "" {
		return Record{}, false, nil
	}
	var rec Record
	err := s.db.QueryRowContext(ctx,
		"SELECT archive_path, asset_id, digest, status, uploaded_at FROM uploads WHERE digest = ? ORDER BY uploaded_at LIMIT 1",
		digest,
	).Scan(&rec.ArchivePath, &rec.AssetID, &rec.Digest, &rec.Status, &rec.UploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query digest: %w", err)
	}
	return rec, true, nil
}

// Record stores or replaces the entry for rec.ArchivePath.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ArchivePath == "" {
		return errors.New("record upload: archive path required")
	}
	if rec.UploadedAt.IsZero() {
		rec.UploadedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (archive_path, asset_id, digest, status, uploaded_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(archive_path) DO UPDATE SET
		   asset_id = excluded.asset_id,
		   digest = excluded.digest,
		   status = excluded.status,
		   uploaded_at = excluded.uploaded_at`,
		rec.ArchivePath, rec.AssetID, rec.Digest, rec.Status, rec.UploadedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("record upload %q: %w", rec.ArchivePath, err)
	}
	return nil
}

// Count returns the number of remembered entries.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM uploads").Scan(&count); err != nil {
		return 0, fmt.Errorf("count uploads: %w", err)
	}
	return count, nil
}

// Close closes the database and releases the lock.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	if s.db != nil {
		err = s.db.Close()
	}
	if s.lock != nil {
		if unlockErr := s.lock.Unlock(); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}
	return err
}
