// Package catalog persists bucket metadata and the granted local directory
// in a SQLite database.
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	_ "modernc.org/sqlite"
)

// Catalog is the SQLite backed metadata store
type Catalog struct {
	db *sql.DB
}

// Open opens (or creates) the catalog at dbPath and runs the schema
// migration. ":memory:" is accepted for tests.
func Open(dbPath string) (*Catalog, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// A single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate catalog: %w", err)
	}
	return &Catalog{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS buckets (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL UNIQUE,
			quota      INTEGER NOT NULL DEFAULT 0,
			expires_at TEXT NOT NULL DEFAULT '',
			durability TEXT NOT NULL DEFAULT 'relaxed',
			created_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS handles (
			key        TEXT PRIMARY KEY,
			path       TEXT NOT NULL,
			granted_at TEXT NOT NULL
		);
	`)
	return err
}

// Close closes the underlying database connection.
func (c *Catalog) Close() error {
	return c.db.Close()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// InsertBucket stores a new bucket row. A taken name is [opfs.ErrAlreadyExists].
func (c *Catalog) InsertBucket(ctx context.Context, d opfs.RootDescriptor) error {
	res, err := c.db.ExecContext(ctx,
		`INSERT INTO buckets (id, name, quota, expires_at, durability, created_at)
		 VALUES (?, ?, ?, ?, ?, ?) ON CONFLICT(name) DO NOTHING`,
		d.ID, d.Name, d.Quota, formatTime(d.Expires), string(d.Durability), formatTime(d.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert bucket %q: %w", d.Name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bucket %q: %w", d.Name, opfs.ErrAlreadyExists)
	}
	return nil
}

// GetBucket returns the bucket row for name or [opfs.ErrNotFound]
func (c *Catalog) GetBucket(ctx context.Context, name string) (opfs.RootDescriptor, error) {
	row := c.db.QueryRowContext(ctx,
		"SELECT id, name, quota, expires_at, durability, created_at FROM buckets WHERE name = ?", name,
	)
	d, err := scanBucket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return opfs.RootDescriptor{}, fmt.Errorf("bucket %q: %w", name, opfs.ErrNotFound)
	}
	return d, err
}

// ListBuckets returns every bucket ordered by name
func (c *Catalog) ListBuckets(ctx context.Context) ([]opfs.RootDescriptor, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT id, name, quota, expires_at, durability, created_at FROM buckets ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	var out []opfs.RootDescriptor
	for rows.Next() {
		d, err := scanBucket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ExpiredBuckets returns the buckets whose expiry is at or before now
func (c *Catalog) ExpiredBuckets(ctx context.Context, now time.Time) ([]opfs.RootDescriptor, error) {
	all, err := c.ListBuckets(ctx)
	if err != nil {
		return nil, err
	}
	var out []opfs.RootDescriptor
	for _, d := range all {
		if d.Expired(now) {
			out = append(out, d)
		}
	}
	return out, nil
}

// DeleteBucket removes the bucket row or returns [opfs.ErrNotFound]
func (c *Catalog) DeleteBucket(ctx context.Context, name string) error {
	res, err := c.db.ExecContext(ctx, "DELETE FROM buckets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("delete bucket %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("bucket %q: %w", name, opfs.ErrNotFound)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBucket(s scanner) (opfs.RootDescriptor, error) {
	var (
		d                opfs.RootDescriptor
		expires, created string
		durability       string
	)
	if err := s.Scan(&d.ID, &d.Name, &d.Quota, &expires, &durability, &created); err != nil {
		return opfs.RootDescriptor{}, err
	}
	var err error
	if d.Expires, err = parseTime(expires); err != nil {
		return opfs.RootDescriptor{}, fmt.Errorf("bucket %q expires_at: %w", d.Name, err)
	}
	if d.CreatedAt, err = parseTime(created); err != nil {
		return opfs.RootDescriptor{}, fmt.Errorf("bucket %q created_at: %w", d.Name, err)
	}
	if d.Durability, err = opfs.ParseDurability(durability); err != nil {
		return opfs.RootDescriptor{}, fmt.Errorf("bucket %q: %w", d.Name, err)
	}
	return d, nil
}

// SaveHandle stores the location of a granted handle under key, replacing
// any previous grant
func (c *Catalog) SaveHandle(ctx context.Context, key, path string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO handles (key, path, granted_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET path = excluded.path, granted_at = excluded.granted_at`,
		key, path, formatTime(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("save handle %q: %w", key, err)
	}
	return nil
}

// LoadHandle returns the stored location for key or [opfs.ErrNotFound]
func (c *Catalog) LoadHandle(ctx context.Context, key string) (string, time.Time, error) {
	var path, granted string
	err := c.db.QueryRowContext(ctx, "SELECT path, granted_at FROM handles WHERE key = ?", key).Scan(&path, &granted)
	if errors.Is(err, sql.ErrNoRows) {
		return "", time.Time{}, fmt.Errorf("handle %q: %w", key, opfs.ErrNotFound)
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("load handle %q: %w", key, err)
	}
	at, err := parseTime(granted)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("handle %q granted_at: %w", key, err)
	}
	return path, at, nil
}

// DeleteHandle forgets the handle stored under key. Missing keys are ignored.
func (c *Catalog) DeleteHandle(ctx context.Context, key string) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM handles WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete handle %q: %w", key, err)
	}
	return nil
}
