package statesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/goliatone/go-statesync/pkg/activity"
)

func startEngine(t *testing.T, cfg Config, host *testHost, driver Driver, opts ...Option) *Engine {
	t.Helper()
	engine := NewEngine(mustBinding(t, cfg, driver), host, opts...)
	if err := engine.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return engine
}

func TestEngineStartRestoresThenWritesThenWatches(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0, "b": 2.0})
	driver := newRecordingDriver(map[string]string{"vue1": `{"a":2}`})

	var ops []string
	logger := LoggerFunc(func(event SyncEvent) { ops = append(ops, event.Op) })
	engine := startEngine(t, Config{Namespace: "vue1", Keys: []string{"a"}}, host, driver, WithLogger(logger))

	if diff := cmp.Diff([]string{OpRestore, OpPersist, OpAttach}, ops); diff != "" {
		t.Fatalf("op order mismatch (-want +got):\n%s", diff)
	}
	if engine.State() != StateWatching {
		t.Fatalf("expected watching, got %s", engine.State())
	}
	if host.state["a"] != 2.0 || host.state["b"] != 2.0 {
		t.Fatalf("unexpected host state %v", host.state)
	}
	if driver.record("vue1") != `{"a":2}` {
		t.Fatalf("unexpected record %q", driver.record("vue1"))
	}
	if record, ok := engine.LastRecord(); !ok || record != `{"a":2}` {
		t.Fatalf("unexpected last record %q ok=%v", record, ok)
	}
	if host.activeWatchers() != 1 {
		t.Fatalf("expected one watcher, got %d", host.activeWatchers())
	}
}

func TestEngineInitialWriteWithoutRecord(t *testing.T) {
	host := newTestHost(map[string]any{"a": map[string]any{"b": map[string]any{"c": 5.0, "d": 0.0}}})
	driver := newRecordingDriver(nil)
	startEngine(t, Config{Namespace: "vue2", Keys: []string{"a.b.c"}}, host, driver)

	if got := driver.record("vue2"); got != `{"a":{"b":{"c":5}}}` {
		t.Fatalf("unexpected initial record %q", got)
	}
}

func TestEnginePersistsOnChange(t *testing.T) {
	host := newTestHost(map[string]any{"a": map[string]any{"b": map[string]any{"c": 5.0}}})
	driver := newRecordingDriver(nil)
	startEngine(t, Config{Namespace: "vue2", Keys: []string{"a.b.c"}}, host, driver)

	SetPath(host.state, "a.b.c", 8.0)
	if err := host.notify("a"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if got := driver.record("vue2"); got != `{"a":{"b":{"c":8}}}` {
		t.Fatalf("unexpected record %q", got)
	}

	writes := driver.setCount()
	host.state["unrelated"] = true
	if err := host.notify("unrelated"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if driver.setCount() != writes {
		t.Fatalf("expected unrelated key to leave storage alone")
	}
}

func TestEngineStopIsIdempotentAndSilencesCallbacks(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0})
	driver := newRecordingDriver(nil)
	engine := startEngine(t, Config{Namespace: "ns", Keys: []string{"a"}}, host, driver)

	captured := host.watchers[0].fn
	engine.Stop()
	engine.Stop()
	if engine.State() != StateDetached {
		t.Fatalf("expected detached, got %s", engine.State())
	}
	if host.activeWatchers() != 0 {
		t.Fatalf("expected watcher unregistered")
	}

	writes := driver.setCount()
	host.state["a"] = 9.0
	if err := captured(); err != nil {
		t.Fatalf("expected stale callback to be a no-op, got %v", err)
	}
	if driver.setCount() != writes || driver.record("ns") != `{"a":1}` {
		t.Fatalf("expected no write after stop")
	}
	if err := engine.Flush(context.Background()); !errors.Is(err, ErrDetached) {
		t.Fatalf("expected ErrDetached, got %v", err)
	}
}

func TestEngineStartTwice(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0})
	engine := startEngine(t, Config{Namespace: "ns", Keys: []string{"a"}}, host, newRecordingDriver(nil))
	if err := engine.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
	if host.activeWatchers() != 1 {
		t.Fatalf("expected a single watcher")
	}
}

func TestEngineRestoreFailureLeavesNoWatcher(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0})
	driver := newRecordingDriver(nil)
	driver.getErr = errors.New("backend down")
	engine := NewEngine(mustBinding(t, Config{Namespace: "ns", Keys: []string{"a"}}, driver), host)

	err := engine.Start(context.Background())
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
	if engine.State() != StateDetached || host.activeWatchers() != 0 {
		t.Fatalf("expected detached engine without watcher")
	}
	if driver.setCount() != 0 {
		t.Fatalf("expected no write after failed restore")
	}
}

func TestEngineInitialWriteFailure(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0})
	driver := newRecordingDriver(nil)
	driver.setErr = errors.New("quota")
	engine := NewEngine(mustBinding(t, Config{Namespace: "ns", Keys: []string{"a"}}, driver), host)

	if err := engine.Start(context.Background()); !errors.Is(err, driver.setErr) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if engine.State() != StateDetached || host.activeWatchers() != 0 {
		t.Fatalf("expected detached engine without watcher")
	}
}

func TestEnginePersistFailureSurfacesToHost(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0})
	driver := newRecordingDriver(nil)
	capture := &activity.CaptureHook{}

	var mu sync.Mutex
	var handled []error
	handler := func(_ *Engine, err error) {
		mu.Lock()
		handled = append(handled, err)
		mu.Unlock()
	}
	engine := startEngine(t, Config{Namespace: "ns", Keys: []string{"a"}}, host, driver,
		WithErrorHandler(handler),
		WithActivityHooks(activity.Hooks{capture}),
	)

	quota := errors.New("quota exceeded")
	driver.failSets(quota)
	host.state["a"] = 2.0
	err := host.notify("a")
	if !errors.Is(err, quota) || !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error surfaced to host, got %v", err)
	}
	if host.state["a"] != 2.0 {
		t.Fatalf("expected host state untouched by failure")
	}
	if len(handled) != 1 || !errors.Is(handled[0], quota) {
		t.Fatalf("expected error handler invoked once, got %v", handled)
	}
	if engine.State() != StateWatching {
		t.Fatalf("expected engine to keep watching after a failed write")
	}
	verbs := capture.Verbs()
	if verbs[len(verbs)-1] != activity.VerbPersistFailed {
		t.Fatalf("expected persist_failed event, got %v", verbs)
	}

	driver.failSets(nil)
	if err := host.notify("a"); err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if driver.record("ns") != `{"a":2}` {
		t.Fatalf("unexpected record %q", driver.record("ns"))
	}
}

func TestEngineSkipUnchanged(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0, "b": 1.0})
	driver := newRecordingDriver(nil)

	var skipped int
	logger := LoggerFunc(func(event SyncEvent) {
		if event.Skipped {
			skipped++
		}
	})
	startEngine(t, Config{Namespace: "ns", Keys: []string{"a"}}, host, driver, WithSkipUnchanged(), WithLogger(logger))
	if driver.setCount() != 1 {
		t.Fatalf("expected initial write, got %d", driver.setCount())
	}

	if err := host.notify("a"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if driver.setCount() != 1 || skipped != 1 {
		t.Fatalf("expected unchanged record skipped, writes=%d skipped=%d", driver.setCount(), skipped)
	}

	host.state["a"] = 3.0
	if err := host.notify("a"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if driver.setCount() != 2 {
		t.Fatalf("expected changed record written, got %d", driver.setCount())
	}
}

func TestEngineWithoutSkipWritesEveryNotification(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0})
	driver := newRecordingDriver(nil)
	startEngine(t, Config{Namespace: "ns", Keys: []string{"a"}}, host, driver)

	for i := 0; i < 3; i++ {
		if err := host.notify("a"); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if driver.setCount() != 4 {
		t.Fatalf("expected 4 writes, got %d", driver.setCount())
	}
}

func TestEngineFlush(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0})
	driver := newRecordingDriver(nil)
	engine := startEngine(t, Config{Namespace: "ns", Keys: []string{"a"}}, host, driver)

	host.state["a"] = 5.0
	if err := engine.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if driver.record("ns") != `{"a":5}` {
		t.Fatalf("unexpected record %q", driver.record("ns"))
	}
}

func TestEngineActivityEvents(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0, "b": 1.0})
	driver := newRecordingDriver(map[string]string{"ns": `{"a":2}`})
	capture := &activity.CaptureHook{}

	engine := startEngine(t, Config{Namespace: "ns", Keys: []string{"a", "b"}}, host, driver,
		WithActivityHooks(activity.Hooks{capture}),
		WithActor("user-7"),
	)
	host.state["b"] = 4.0
	if err := host.notify("b"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	engine.Stop()

	want := []string{
		activity.VerbRestored,
		activity.VerbPersisted,
		activity.VerbAttached,
		activity.VerbPersisted,
		activity.VerbDetached,
	}
	if diff := cmp.Diff(want, capture.Verbs()); diff != "" {
		t.Fatalf("verb mismatch (-want +got):\n%s", diff)
	}

	events := capture.Events()
	for _, event := range events {
		if event.ActorID != "user-7" || event.ObjectID != "ns" || event.Channel != activity.DefaultChannel {
			t.Fatalf("unexpected event envelope %+v", event)
		}
		if event.Metadata["attachment_id"] != engine.ID() || event.Metadata["driver"] != "recording" {
			t.Fatalf("unexpected event metadata %+v", event.Metadata)
		}
	}
	if diff := cmp.Diff([]string{"a"}, events[0].Metadata["paths"]); diff != "" {
		t.Fatalf("restored paths mismatch (-want +got):\n%s", diff)
	}
	if _, ok := events[1].Metadata["patch"]; ok {
		t.Fatalf("expected no patch on the first write")
	}
	if events[3].Metadata["patch"] != `{"b":4}` {
		t.Fatalf("unexpected patch %v", events[3].Metadata["patch"])
	}
}

func TestEngineSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })

	host := newTestHost(map[string]any{"a": 1.0})
	driver := newRecordingDriver(nil)
	startEngine(t, Config{Namespace: "ns", Keys: []string{"a"}}, host, driver, WithTracer(provider.Tracer("test")))

	driver.failSets(errors.New("quota"))
	_ = host.notify("a")

	spans := recorder.Ended()
	var names []string
	for _, span := range spans {
		names = append(names, span.Name())
	}
	if diff := cmp.Diff([]string{"statesync.restore", "statesync.persist", "statesync.persist"}, names); diff != "" {
		t.Fatalf("span names mismatch (-want +got):\n%s", diff)
	}
	if spans[1].Status().Code == codes.Error {
		t.Fatalf("expected successful initial persist span")
	}
	if spans[2].Status().Code != codes.Error {
		t.Fatalf("expected failed persist span marked as error")
	}
}

func TestEngineIgnoresNilLogger(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0})
	engine := startEngine(t, Config{Namespace: "ns", Keys: []string{"a"}}, host, newRecordingDriver(nil), WithLogger(nil))
	engine.Stop()
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		StateUnattached: "unattached",
		StateRestored:   "restored",
		StateWatching:   "watching",
		StateDetached:   "detached",
		State(42):       "state(42)",
	}
	for state, want := range cases {
		if state.String() != want {
			t.Fatalf("expected %q, got %q", want, state.String())
		}
	}
}

func TestEngineUsesLockedHostAccess(t *testing.T) {
	host := &lockingHost{testHost: newTestHost(map[string]any{"a": 1.0})}
	driver := newRecordingDriver(map[string]string{"ns": `{"a":2}`})
	locked := NewEngine(mustBinding(t, Config{Namespace: "ns", Keys: []string{"a"}}, driver), host)
	if err := locked.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if host.updates != 1 || host.reads != 1 {
		t.Fatalf("expected restore through Update and capture through Read, got updates=%d reads=%d", host.updates, host.reads)
	}
	if host.state["a"] != 2.0 {
		t.Fatalf("expected restored value, got %v", host.state["a"])
	}
	if err := host.notify("a"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if host.reads != 2 {
		t.Fatalf("expected change capture through Read, got %d", host.reads)
	}
}

func TestEngineCallbacksMayReenterEngine(t *testing.T) {
	host := newTestHost(map[string]any{"a": 1.0})
	driver := newRecordingDriver(nil)

	var engine *Engine
	var observed []State
	logger := LoggerFunc(func(SyncEvent) {
		if engine != nil {
			observed = append(observed, engine.State())
			engine.LastRecord()
		}
	})
	hook := activity.HookFunc(func(context.Context, activity.Event) error {
		if engine != nil {
			engine.State()
		}
		return nil
	})
	engine = NewEngine(mustBinding(t, Config{Namespace: "ns", Keys: []string{"a"}}, driver), host,
		WithLogger(logger),
		WithActivityHooks(activity.Hooks{hook}),
	)

	done := make(chan error, 1)
	go func() {
		err := engine.Start(context.Background())
		if err == nil {
			err = host.notify("a")
		}
		if err == nil {
			err = engine.Flush(context.Background())
		}
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("engine deadlocked when a logger or hook called back into it")
	}
	if len(observed) == 0 || observed[len(observed)-1] != StateWatching {
		t.Fatalf("expected callbacks to observe the engine, got %v", observed)
	}
}
