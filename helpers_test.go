package statesync

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// testHost is a minimal Host whose watchers run only when notify is called.
type testHost struct {
	mu       sync.Mutex
	state    map[string]any
	watchers []*testWatch
}

type testWatch struct {
	keys   []string
	fn     func() error
	active bool
}

func newTestHost(state map[string]any) *testHost {
	if state == nil {
		state = map[string]any{}
	}
	return &testHost{state: state}
}

func (h *testHost) State() map[string]any { return h.state }

func (h *testHost) Watch(keys []string, fn func() error) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	w := &testWatch{keys: append([]string(nil), keys...), fn: fn, active: true}
	h.watchers = append(h.watchers, w)
	return func() {
		h.mu.Lock()
		w.active = false
		h.mu.Unlock()
	}
}

// notify runs every active watcher interested in key and joins their errors.
func (h *testHost) notify(key string) error {
	h.mu.Lock()
	var due []*testWatch
	for _, w := range h.watchers {
		if !w.active {
			continue
		}
		for _, k := range w.keys {
			if k == key {
				due = append(due, w)
				break
			}
		}
	}
	h.mu.Unlock()

	var errs []error
	for _, w := range due {
		if err := w.fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *testHost) activeWatchers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, w := range h.watchers {
		if w.active {
			n++
		}
	}
	return n
}

// recordingDriver is an in-memory Driver that counts calls and can fail on
// demand.
type recordingDriver struct {
	mu      sync.Mutex
	records map[string]string
	gets    int
	sets    int
	getErr  error
	setErr  error
}

func newRecordingDriver(seed map[string]string) *recordingDriver {
	records := map[string]string{}
	for k, v := range seed {
		records[k] = v
	}
	return &recordingDriver{records: records}
}

func (d *recordingDriver) Name() string { return "recording" }

func (d *recordingDriver) Get(_ context.Context, key string) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gets++
	if d.getErr != nil {
		return "", false, d.getErr
	}
	value, ok := d.records[key]
	return value, ok, nil
}

func (d *recordingDriver) Set(_ context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sets++
	if d.setErr != nil {
		return d.setErr
	}
	d.records[key] = value
	return nil
}

func (d *recordingDriver) Remove(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.records, key)
	return nil
}

func (d *recordingDriver) record(key string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.records[key]
}

func (d *recordingDriver) setCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sets
}

func (d *recordingDriver) failSets(err error) {
	d.mu.Lock()
	d.setErr = err
	d.mu.Unlock()
}

func mustBinding(t *testing.T, cfg Config, driver Driver) *Binding {
	t.Helper()
	binding, err := NewBinding(cfg, driver)
	if err != nil {
		t.Fatalf("new binding: %v", err)
	}
	return binding
}

// lockingHost routes state access through Read and Update and counts them.
type lockingHost struct {
	*testHost
	lock    sync.Mutex
	reads   int
	updates int
}

func (h *lockingHost) Read(fn func(map[string]any)) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.reads++
	fn(h.state)
}

func (h *lockingHost) Update(fn func(map[string]any)) {
	h.lock.Lock()
	defer h.lock.Unlock()
	h.updates++
	fn(h.state)
}
