// Package sqlite provides a SQLite-backed driver using the pure Go
// modernc.org/sqlite engine.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultName labels stores in logs and activity metadata.
const DefaultName = "sqlite"

//go:embed schema.sql
var schemaSQL string

// Store persists records in a single SQLite table keyed by namespace.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens a SQLite database at path and ensures the records table.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: ping db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("sqlite: apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

func (s *Store) Name() string { return DefaultName }

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.ready(ctx); err != nil {
		return "", false, err
	}
	var record string
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT record FROM statesync_records WHERE namespace = ?`, key,
	).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sqlite: get %q: %w", key, err)
	}
	return record, true, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("sqlite: key is required")
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO statesync_records (namespace, record, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(namespace) DO UPDATE SET
		   record = excluded.record,
		   updated_at = excluded.updated_at`,
		key, value, s.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: set %q: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM statesync_records WHERE namespace = ?`, key); err != nil {
		return fmt.Errorf("sqlite: remove %q: %w", key, err)
	}
	return nil
}

// UpdatedAt reports when key was last written.
func (s *Store) UpdatedAt(ctx context.Context, key string) (time.Time, bool, error) {
	if err := s.ready(ctx); err != nil {
		return time.Time{}, false, err
	}
	var millis int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT updated_at FROM statesync_records WHERE namespace = ?`, key,
	).Scan(&millis)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlite: updated_at %q: %w", key, err)
	}
	return time.UnixMilli(millis).UTC(), true, nil
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("sqlite: storage is not configured")
	}
	return nil
}
