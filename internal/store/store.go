// Package store persists annotations and reading positions in SQLite, keyed
// by the fingerprint of the book they belong to.
//
// Build modes:
//   - Default (CGO_ENABLED=0): pure Go modernc.org/sqlite
//   - CGO mode (CGO_ENABLED=1 -tags cgo_sqlite): mattn/go-sqlite3
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/FocuswithJustin/JuniperReader/core/annotation"
	"github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS annotations (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	fingerprint TEXT NOT NULL,
	value       TEXT NOT NULL,
	kind        TEXT NOT NULL,
	color       TEXT NOT NULL DEFAULT '',
	note        TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL,
	UNIQUE (fingerprint, value)
);
CREATE TABLE IF NOT EXISTS positions (
	fingerprint TEXT PRIMARY KEY,
	cfi         TEXT NOT NULL,
	updated_at  TEXT NOT NULL
);
`

// Info describes the SQLite driver compiled in.
type Info struct {
	DriverName string `json:"driver_name"`
	DriverType string `json:"driver_type"`
	IsCGO      bool   `json:"is_cgo"`
	Package    string `json:"package"`
}

// GetInfo returns information about the current SQLite configuration.
func GetInfo() Info {
	return Info{
		DriverName: driverName,
		DriverType: driverType,
		IsCGO:      driverType == "cgo",
		Package:    driverPackage,
	}
}

// Store is an annotation database.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open(driverName, path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	logging.Debug("annotation store opened", "path", path, "driver", driverType)
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts a, or updates the annotation already stored at the same
// location, and returns it with its stored ID. A location whose structural
// prefix is malformed is refused with errors.ErrMalformedLocation.
func (s *Store) Save(ctx context.Context, fingerprint string, a annotation.Annotation) (annotation.Annotation, error) {
	if _, err := a.Chapter(); err != nil {
		return a, err
	}
	if a.Kind == "" {
		a.Kind = annotation.KindHighlight
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO annotations (fingerprint, value, kind, color, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint, value) DO UPDATE SET
			kind = excluded.kind, color = excluded.color, note = excluded.note`,
		fingerprint, a.Value, string(a.Kind), a.Color, a.Note, now())
	if err != nil {
		return a, fmt.Errorf("save annotation: %w", err)
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM annotations WHERE fingerprint = ? AND value = ?`,
		fingerprint, a.Value).Scan(&a.ID)
	if err != nil {
		return a, fmt.Errorf("read annotation id: %w", err)
	}
	return a, nil
}

// Import saves annotations in one transaction. Annotations with a malformed
// location are skipped and reported in the returned error; the count is the
// number stored.
func (s *Store) Import(ctx context.Context, fingerprint string, annotations []annotation.Annotation) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO annotations (fingerprint, value, kind, color, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (fingerprint, value) DO UPDATE SET
			kind = excluded.kind, color = excluded.color, note = excluded.note`)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	var rejected []error
	stored := 0
	for _, a := range annotations {
		if _, err := a.Chapter(); err != nil {
			logging.AnnotationRejected(a.ID, a.Value, err)
			rejected = append(rejected, err)
			continue
		}
		kind := a.Kind
		if kind == "" {
			kind = annotation.KindHighlight
		}
		if _, err := stmt.ExecContext(ctx, fingerprint, a.Value, string(kind), a.Color, a.Note, now()); err != nil {
			return 0, fmt.Errorf("import %s: %w", a.Value, err)
		}
		stored++
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}
	return stored, errors.Join(rejected...)
}

// List returns the annotations of a book in insertion order.
func (s *Store) List(ctx context.Context, fingerprint string) ([]annotation.Annotation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, value, kind, color, note FROM annotations
		WHERE fingerprint = ? ORDER BY id`, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()

	var out []annotation.Annotation
	for rows.Next() {
		var a annotation.Annotation
		var kind string
		if err := rows.Scan(&a.ID, &a.Value, &kind, &a.Color, &a.Note); err != nil {
			return nil, fmt.Errorf("scan annotation: %w", err)
		}
		a.Kind = annotation.Kind(kind)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Delete removes the annotation at value and reports whether one existed.
func (s *Store) Delete(ctx context.Context, fingerprint, value string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM annotations WHERE fingerprint = ? AND value = ?`, fingerprint, value)
	if err != nil {
		return false, fmt.Errorf("delete annotation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SetLastLocation records where reading stopped.
func (s *Store) SetLastLocation(ctx context.Context, fingerprint, cfi string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (fingerprint, cfi, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (fingerprint) DO UPDATE SET cfi = excluded.cfi, updated_at = excluded.updated_at`,
		fingerprint, cfi, now())
	if err != nil {
		return fmt.Errorf("save position: %w", err)
	}
	return nil
}

// LastLocation returns the recorded reading position, if any.
func (s *Store) LastLocation(ctx context.Context, fingerprint string) (string, bool, error) {
	var cfi string
	err := s.db.QueryRowContext(ctx,
		`SELECT cfi FROM positions WHERE fingerprint = ?`, fingerprint).Scan(&cfi)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read position: %w", err)
	}
	return cfi, true, nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
