// Package file stores each record as a file in a directory. Writes go through
// a temporary file and a rename so readers never observe a partial record.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	// DefaultName labels stores in logs and activity metadata.
	DefaultName = "file"
	extension   = ".record"
)

// Store keeps records under dir, one file per key.
type Store struct {
	mu   sync.Mutex
	dir  string
	perm fs.FileMode
}

// Option configures a Store.
type Option func(*Store)

// WithFileMode sets the permission bits of written records.
func WithFileMode(perm fs.FileMode) Option {
	return func(s *Store) {
		if perm != 0 {
			s.perm = perm
		}
	}
}

// Open creates dir when missing and returns a store rooted there.
func Open(dir string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("file: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("file: create %s: %w", dir, err)
	}
	s := &Store{dir: dir, perm: 0o600}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

func (s *Store) Name() string { return DefaultName }

// Dir returns the directory records are written to.
func (s *Store) Dir() string { return s.dir }

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	path, err := s.path(key)
	if err != nil {
		return "", false, err
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("file: read %q: %w", key, err)
	}
	return string(raw), true, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("file: write %q: %w", key, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("file: write %q: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file: write %q: %w", key, err)
	}
	if err := os.Chmod(tmpName, s.perm); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file: write %q: %w", key, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("file: write %q: %w", key, err)
	}
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	path, err := s.path(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("file: remove %q: %w", key, err)
	}
	return nil
}

// Keys lists the keys with a record on disk.
func (s *Store) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("file: list %s: %w", s.dir, err)
	}
	var keys []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, extension) {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, extension))
		if err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys, nil
}

func (s *Store) path(key string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("file: key is required")
	}
	return filepath.Join(s.dir, url.PathEscape(key)+extension), nil
}
