// Package reactive provides a small observable state container that satisfies
// the statesync host contract. Mutations mark their top-level key dirty and
// watchers run once per Flush for all keys dirtied since the last flush, the
// way a UI framework coalesces changes until its next tick.
//
// A Model may be written from several goroutines and flushed from a
// scheduler goroutine. Bindings reach the state through Read and Update, which
// hold the same lock as Set; callers that mutate the map through Update must
// Touch the keys they changed.
package reactive

import (
	"errors"
	"sort"
	"sync"

	statesync "github.com/goliatone/go-statesync"
	"github.com/goliatone/go-statesync/layering"
)

var _ statesync.LockedHost = (*Model)(nil)

// Scheduler arranges for flush to run later, for example on another
// goroutine or after a timer.
type Scheduler func(flush func())

// Option configures a Model.
type Option func(*Model)

// WithScheduler makes the model schedule a flush on the first mutation after
// each flush. Without it, callers drive Flush themselves.
func WithScheduler(scheduler Scheduler) Option {
	return func(m *Model) {
		m.scheduler = scheduler
	}
}

// WithFlushErrorHandler receives errors from scheduled flushes.
func WithFlushErrorHandler(handler func(error)) Option {
	return func(m *Model) {
		m.onFlushError = handler
	}
}

type watcher struct {
	id   uint64
	keys map[string]struct{}
	fn   func() error
}

// Model is an observable map[string]any.
type Model struct {
	mu        sync.Mutex
	state     map[string]any
	watchers  []*watcher
	nextID    uint64
	dirty     map[string]struct{}
	scheduled bool

	scheduler    Scheduler
	onFlushError func(error)
}

// New builds a model from a deep copy of initial.
func New(initial map[string]any, opts ...Option) *Model {
	state := layering.Clone(initial)
	if state == nil {
		state = map[string]any{}
	}
	m := &Model{state: state, dirty: map[string]struct{}{}}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m
}

// State returns the live state map. Reading it while another goroutine calls
// Set is a race; use Read or Update instead.
func (m *Model) State() map[string]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Read runs fn with the state map while holding the model lock.
func (m *Model) Read(fn func(state map[string]any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

// Update runs fn with the state map while holding the model lock. Changes
// made by fn are not marked dirty; call Touch afterwards if watchers should
// see them.
func (m *Model) Update(fn func(state map[string]any)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

// Get reads the value at a dotted path.
func (m *Model) Get(path string) (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return statesync.GetPath(m.state, path)
}

// Set assigns value at a dotted path and marks its top-level key dirty. It
// reports false when the path cannot be set.
func (m *Model) Set(path string, value any) bool {
	m.mu.Lock()
	if !statesync.SetPath(m.state, path, value) {
		m.mu.Unlock()
		return false
	}
	schedule := m.markLocked(statesync.RootKey(path))
	m.mu.Unlock()

	m.schedule(schedule)
	return true
}

// Touch marks top-level keys dirty after an in-place mutation of State.
func (m *Model) Touch(keys ...string) {
	m.mu.Lock()
	schedule := false
	for _, key := range keys {
		if m.markLocked(key) {
			schedule = true
		}
	}
	m.mu.Unlock()

	m.schedule(schedule)
}

// Watch registers fn for changes to any of keys and returns its unregister
// function. fn never runs during Watch.
func (m *Model) Watch(keys []string, fn func() error) func() {
	if fn == nil {
		return func() {}
	}
	w := &watcher{keys: make(map[string]struct{}, len(keys)), fn: fn}
	for _, key := range keys {
		w.keys[key] = struct{}{}
	}

	m.mu.Lock()
	m.nextID++
	w.id = m.nextID
	m.watchers = append(m.watchers, w)
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { m.unwatch(w.id) })
	}
}

// Pending lists the keys dirtied since the last flush.
func (m *Model) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.dirty))
	for key := range m.dirty {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Watchers reports how many watchers are registered.
func (m *Model) Watchers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers)
}

// Flush runs, once each and in registration order, every watcher interested
// in a key dirtied since the last flush. Watcher errors are joined.
func (m *Model) Flush() error {
	m.mu.Lock()
	dirty := m.dirty
	m.dirty = map[string]struct{}{}
	m.scheduled = false
	var due []*watcher
	for _, w := range m.watchers {
		for key := range dirty {
			if _, ok := w.keys[key]; ok {
				due = append(due, w)
				break
			}
		}
	}
	m.mu.Unlock()

	var errs []error
	for _, w := range due {
		if !m.registered(w.id) {
			continue
		}
		if err := w.fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Model) markLocked(key string) bool {
	m.dirty[key] = struct{}{}
	if m.scheduler == nil || m.scheduled {
		return false
	}
	m.scheduled = true
	return true
}

func (m *Model) schedule(ok bool) {
	if !ok {
		return
	}
	m.scheduler(func() {
		if err := m.Flush(); err != nil && m.onFlushError != nil {
			m.onFlushError(err)
		}
	})
}

func (m *Model) registered(id uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.watchers {
		if w.id == id {
			return true
		}
	}
	return false
}

func (m *Model) unwatch(id uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for idx, w := range m.watchers {
		if w.id == id {
			m.watchers = append(m.watchers[:idx:idx], m.watchers[idx+1:]...)
			return
		}
	}
}
