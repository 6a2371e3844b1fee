package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/g960059/hostkeep/internal/model"
)

var (
	ErrDuplicate = errors.New("duplicate")
	ErrNotFound  = errors.New("not found")
	ErrInvalid   = errors.New("invalid")
)

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("chmod db path: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

// Checkpoint folds the write-ahead log back into the database file and
// truncates it.
func (s *Store) Checkpoint(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("wal checkpoint: %w", err)
	}
	return nil
}

func (s *Store) ListProperties(ctx context.Context) ([]model.Property, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT property_id, name, address, cover_photo_url, created_at, updated_at
FROM properties
ORDER BY name ASC, property_id ASC
`)
	if err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	out := []model.Property{}
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate properties: %w", err)
	}
	return out, nil
}

func (s *Store) GetProperty(ctx context.Context, propertyID string) (model.Property, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT property_id, name, address, cover_photo_url, created_at, updated_at
FROM properties
WHERE property_id = ?
`, propertyID)
	p, err := scanProperty(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Property{}, ErrNotFound
	}
	return p, err
}

// CreateProperty inserts p under a new id when PropertyID is empty.
func (s *Store) CreateProperty(ctx context.Context, p model.Property) (model.Property, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return model.Property{}, fmt.Errorf("%w: property name is required", ErrInvalid)
	}
	if p.PropertyID == "" {
		p.PropertyID = uuid.NewString()
	}
	now := s.now()
	p.CreatedAt = now
	p.UpdatedAt = now
	_, err := s.db.ExecContext(ctx, `
INSERT INTO properties(property_id, name, address, cover_photo_url, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
`, p.PropertyID, p.Name, p.Address, p.CoverPhotoURL, ts(p.CreatedAt), ts(p.UpdatedAt))
	if err != nil {
		if isUniqueErr(err) {
			return model.Property{}, ErrDuplicate
		}
		return model.Property{}, fmt.Errorf("insert property: %w", err)
	}
	return p, nil
}

func (s *Store) UpdateProperty(ctx context.Context, p model.Property) (model.Property, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return model.Property{}, fmt.Errorf("%w: property name is required", ErrInvalid)
	}
	p.UpdatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
UPDATE properties
SET name = ?, address = ?, cover_photo_url = ?, updated_at = ?
WHERE property_id = ?
`, p.Name, p.Address, p.CoverPhotoURL, ts(p.UpdatedAt), p.PropertyID)
	if err != nil {
		if isUniqueErr(err) {
			return model.Property{}, ErrDuplicate
		}
		return model.Property{}, fmt.Errorf("update property: %w", err)
	}
	if err := expectOneRow(res); err != nil {
		return model.Property{}, err
	}
	return s.GetProperty(ctx, p.PropertyID)
}

// DeleteProperty removes the property and, through foreign keys, every item
// that belongs to it.
func (s *Store) DeleteProperty(ctx context.Context, propertyID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM properties WHERE property_id = ?`, propertyID)
	if err != nil {
		return fmt.Errorf("delete property: %w", err)
	}
	return expectOneRow(res)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProperty(row rowScanner) (model.Property, error) {
	var (
		p                    model.Property
		createdAt, updatedAt string
	)
	if err := row.Scan(&p.PropertyID, &p.Name, &p.Address, &p.CoverPhotoURL, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Property{}, err
		}
		return model.Property{}, fmt.Errorf("scan property: %w", err)
	}
	var err error
	if p.CreatedAt, err = parseTS(createdAt); err != nil {
		return model.Property{}, fmt.Errorf("parse property created_at: %w", err)
	}
	if p.UpdatedAt, err = parseTS(updatedAt); err != nil {
		return model.Property{}, fmt.Errorf("parse property updated_at: %w", err)
	}
	return p, nil
}

// requireProperty maps a missing parent property to ErrNotFound before an
// insert would trip the foreign key.
func requireProperty(ctx context.Context, q querier, propertyID string) error {
	var exists int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM properties WHERE property_id = ?`, propertyID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("property %s: %w", propertyID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("check property %s: %w", propertyID, err)
	}
	return nil
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

func ts(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTS(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func isUniqueErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}
