// Package bolt is a BoltDB-backed driver for durable single-process storage.
package bolt

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

const (
	// DefaultName labels stores in logs and activity metadata.
	DefaultName = "bolt"
	// DefaultBucket holds records when WithBucket is not supplied.
	DefaultBucket = "statesync"
)

// Store provides a BoltDB-backed key-value driver.
type Store struct {
	db      *bbolt.DB
	bucket  []byte
	timeout time.Duration
}

// Option configures a Store before the database is opened.
type Option func(*Store)

// WithBucket selects the bucket records are stored in.
func WithBucket(name string) Option {
	return func(s *Store) {
		if strings.TrimSpace(name) != "" {
			s.bucket = []byte(name)
		}
	}
}

// WithTimeout bounds how long Open waits for the file lock.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("bolt: storage path is required")
	}

	store := &Store{bucket: []byte(DefaultBucket), timeout: time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}

	db, err := bbolt.Open(filepath.Clean(path), 0o600, &bbolt.Options{Timeout: store.timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open storage db: %w", err)
	}
	store.db = db
	if err := store.ensureBucket(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) Name() string { return DefaultName }

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.ready(ctx); err != nil {
		return "", false, err
	}

	var (
		value string
		found bool
	)
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bolt: bucket %q is missing", s.bucket)
		}
		payload := bucket.Get([]byte(key))
		if payload == nil {
			return nil
		}
		// payload is only valid inside the transaction.
		value, found = string(payload), true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("bolt: key is required")
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bolt: bucket %q is missing", s.bucket)
		}
		return bucket.Put([]byte(key), []byte(value))
	})
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bolt: bucket %q is missing", s.bucket)
		}
		return bucket.Delete([]byte(key))
	})
}

// Keys lists stored keys in byte order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(s.bucket)
		if bucket == nil {
			return fmt.Errorf("bolt: bucket %q is missing", s.bucket)
		}
		return bucket.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return fmt.Errorf("bolt: storage is not configured")
	}
	return nil
}

func (s *Store) ensureBucket() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(s.bucket); err != nil {
			return fmt.Errorf("bolt: create bucket %q: %w", s.bucket, err)
		}
		return nil
	})
}
