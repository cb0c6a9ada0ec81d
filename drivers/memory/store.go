// Package memory provides an in-process key-value driver. Two stores created
// separately never share records, which makes a pair of them a stand-in for
// local and session storage in tests and examples.
package memory

import (
	"context"
	"sort"
	"sync"
)

// DefaultName labels stores created without WithName.
const DefaultName = "memory"

// Store is a concurrency-safe map of string records.
type Store struct {
	mu      sync.RWMutex
	name    string
	records map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithName sets the label reported to logs and activity metadata.
func WithName(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.name = name
		}
	}
}

// WithRecords pre-seeds the store, copying seed.
func WithRecords(seed map[string]string) Option {
	return func(s *Store) {
		for key, value := range seed {
			s.records[key] = value
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{name: DefaultName, records: map[string]string{}}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Name returns the store label.
func (s *Store) Name() string { return s.name }

func (s *Store) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	value, ok := s.records[key]
	s.mu.RUnlock()
	return value, ok, nil
}

func (s *Store) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	s.records[key] = value
	s.mu.Unlock()
	return nil
}

func (s *Store) Remove(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Clear drops every record.
func (s *Store) Clear() {
	s.mu.Lock()
	s.records = map[string]string{}
	s.mu.Unlock()
}

// Keys lists stored keys in lexical order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.records))
	for key := range s.records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
