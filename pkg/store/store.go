// Package store persists committed crops per photo in SQLite so that a later
// edit session can start from the previous view.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/menta2k/pawcrop/internal/utils"
	"github.com/menta2k/pawcrop/pkg/types"
)

var (
	// ErrNotFound is returned when a photo has no stored crop
	ErrNotFound = errors.New("crop not found")
	// ErrInvalidCrop is returned for crops outside the unit square
	ErrInvalidCrop = errors.New("invalid crop")
)

const schema = `
CREATE TABLE IF NOT EXISTS crops (
	id         TEXT PRIMARY KEY,
	photo_id   TEXT NOT NULL UNIQUE,
	x          REAL NOT NULL,
	y          REAL NOT NULL,
	width      REAL NOT NULL,
	height     REAL NOT NULL,
	scale      REAL NOT NULL,
	source_w   REAL NOT NULL,
	source_h   REAL NOT NULL,
	updated_at INTEGER NOT NULL
);`

// Record is one stored crop
type Record struct {
	ID        uuid.UUID      `json:"id"`
	PhotoID   string         `json:"photo_id"`
	Crop      types.CropData `json:"crop"`
	Source    types.Size     `json:"source"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Store is a SQLite-backed crop repository
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path
func Open(ctx context.Context, path string) (*Store, error) {
	if path != ":memory:" {
		if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	// one connection keeps :memory: databases coherent and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure store: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the crop for photoID. The record id is kept
// across updates.
func (s *Store) Save(ctx context.Context, photoID string, crop types.CropData, source types.Size) (Record, error) {
	if photoID == "" {
		return Record{}, fmt.Errorf("%w: empty photo id", ErrInvalidCrop)
	}
	if !crop.Valid() {
		return Record{}, fmt.Errorf("%w: %+v", ErrInvalidCrop, crop)
	}

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO crops (id, photo_id, x, y, width, height, scale, source_w, source_h, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(photo_id) DO UPDATE SET
			x = excluded.x, y = excluded.y, width = excluded.width, height = excluded.height,
			scale = excluded.scale, source_w = excluded.source_w, source_h = excluded.source_h,
			updated_at = excluded.updated_at`,
		uuid.NewString(), photoID, crop.X, crop.Y, crop.Width, crop.Height, crop.Scale,
		source.Width, source.Height, now.UnixMilli())
	if err != nil {
		return Record{}, fmt.Errorf("failed to save crop for %s: %w", photoID, err)
	}
	return s.Get(ctx, photoID)
}

const selectColumns = `SELECT id, photo_id, x, y, width, height, scale, source_w, source_h, updated_at FROM crops`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		r       Record
		id      string
		updated int64
	)
	err := row.Scan(&id, &r.PhotoID, &r.Crop.X, &r.Crop.Y, &r.Crop.Width, &r.Crop.Height,
		&r.Crop.Scale, &r.Source.Width, &r.Source.Height, &updated)
	if err != nil {
		return Record{}, err
	}
	if r.ID, err = uuid.Parse(id); err != nil {
		return Record{}, fmt.Errorf("corrupt record id %q: %w", id, err)
	}
	r.UpdatedAt = time.UnixMilli(updated).UTC()
	return r, nil
}

// Get returns the stored crop for photoID
func (s *Store) Get(ctx context.Context, photoID string) (Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE photo_id = ?`, photoID))
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, photoID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load crop for %s: %w", photoID, err)
	}
	return r, nil
}

// List returns every stored crop, most recently updated first
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY updated_at DESC, photo_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list crops: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Delete removes the stored crop for photoID
func (s *Store) Delete(ctx context.Context, photoID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM crops WHERE photo_id = ?`, photoID)
	if err != nil {
		return fmt.Errorf("failed to delete crop for %s: %w", photoID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, photoID)
	}
	return nil
}
