package statesync

import (
	"context"
	"fmt"
	"sync"
	"time"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-statesync/pkg/activity"
)

// State is the lifecycle position of an Engine.
type State int

const (
	StateUnattached State = iota
	StateRestored
	StateWatching
	StateDetached
)

func (s State) String() string {
	switch s {
	case StateUnattached:
		return "unattached"
	case StateRestored:
		return "restored"
	case StateWatching:
		return "watching"
	case StateDetached:
		return "detached"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Engine drives one Binding against one Host: restore on start, persist on
// every change notification, stop on detach.
type Engine struct {
	mu      sync.Mutex
	id      string
	binding *Binding
	host    Host
	driver  string
	state   State

	unwatch func()
	ctx     context.Context
	cancel  context.CancelFunc

	last    string
	hasLast bool
	outbox  []func()

	logger        Logger
	emitter       *activity.Emitter
	tracer        trace.Tracer
	skipUnchanged bool
	onError       ErrorHandler
}

// NewEngine builds an engine for binding on host. Options are the same as the
// coordinator's; the default driver option is ignored since the binding
// already owns its driver.
func NewEngine(binding *Binding, host Host, opts ...Option) *Engine {
	cfg := applyOptions(opts)
	return newEngine(binding, host, cfg, activity.NewEmitter(cfg.hooks, cfg.activity))
}

func newEngine(binding *Binding, host Host, cfg coordinatorConfig, emitter *activity.Emitter) *Engine {
	return &Engine{
		id:            uuid.NewString(),
		binding:       binding,
		host:          host,
		driver:        driverName(binding.Driver()),
		state:         StateUnattached,
		logger:        cfg.logger,
		emitter:       emitter,
		tracer:        cfg.tracer,
		skipUnchanged: cfg.skipUnchanged,
		onError:       cfg.onError,
	}
}

// ID identifies this attachment in logs, spans and activity events.
func (e *Engine) ID() string { return e.id }

// Binding returns the binding the engine drives.
func (e *Engine) Binding() *Binding { return e.binding }

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastRecord returns the last record this engine wrote.
func (e *Engine) LastRecord() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

// Start restores persisted values into host state, writes the resulting
// projection, then registers the change observer. Restore always completes
// before the observer exists. On error the engine ends detached.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.unlockAndNotify()

	if e.state != StateUnattached {
		return fmt.Errorf("statesync: engine %s cannot start from state %s", e.id, e.state)
	}

	if err := e.restoreLocked(ctx); err != nil {
		e.state = StateDetached
		return err
	}
	e.state = StateRestored

	if err := e.persistLocked(ctx); err != nil {
		e.state = StateDetached
		return err
	}

	e.ctx, e.cancel = context.WithCancel(context.WithoutCancel(ctx))
	e.unwatch = e.host.Watch(e.binding.RootKeys(), e.onChange)
	e.state = StateWatching

	e.logLocked(SyncEvent{Op: OpAttach})
	e.emitLocked(ctx, activity.BuildAttachedEvent(e.eventInput(nil, nil)))
	return nil
}

// Flush persists the current projection outside of a change notification.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.unlockAndNotify()
	if e.state != StateWatching {
		return ErrDetached
	}
	return e.persistLocked(ctx)
}

// Stop unregisters the observer and moves the engine to StateDetached. It
// waits for an in-flight persist and is safe to call more than once.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.state == StateDetached {
		e.mu.Unlock()
		return
	}
	wasWatching := e.state == StateWatching
	e.state = StateDetached
	unwatch := e.unwatch
	e.unwatch = nil
	if e.cancel != nil {
		e.cancel()
	}
	e.mu.Unlock()

	if unwatch != nil {
		unwatch()
	}
	if !wasWatching {
		return
	}
	e.logger.LogSync(SyncEvent{Op: OpDetach, Namespace: e.binding.Namespace(), Driver: e.driver, AttachmentID: e.id})
	_ = e.emitter.Emit(context.Background(), activity.BuildDetachedEvent(e.eventInput(nil, nil)))
}

// onChange is the observer registered with the host.
func (e *Engine) onChange() error {
	e.mu.Lock()
	if e.state != StateWatching || e.ctx.Err() != nil {
		e.unlockAndNotify()
		return nil
	}
	err := e.persistLocked(e.ctx)
	e.unlockAndNotify()

	if err != nil && e.onError != nil {
		e.onError(e, err)
	}
	return err
}

// logLocked queues a logger call until the engine lock is released. Namespace,
// driver and attachment id are filled in.
func (e *Engine) logLocked(event SyncEvent) {
	event.Namespace = e.binding.Namespace()
	event.Driver = e.driver
	event.AttachmentID = e.id
	e.outbox = append(e.outbox, func() { e.logger.LogSync(event) })
}

// emitLocked queues an activity event until the engine lock is released.
func (e *Engine) emitLocked(ctx context.Context, event activity.Event) {
	if !e.emitter.Enabled() {
		return
	}
	e.outbox = append(e.outbox, func() { _ = e.emitter.Emit(ctx, event) })
}

// unlockAndNotify releases e.mu, then delivers queued log lines and events so
// loggers and hooks may call back into the engine.
func (e *Engine) unlockAndNotify() {
	pending := e.outbox
	e.outbox = nil
	e.mu.Unlock()
	for _, notify := range pending {
		notify()
	}
}

func (e *Engine) restoreLocked(ctx context.Context) (err error) {
	ctx, span := e.startSpan(ctx, OpRestore)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	pending, err := e.binding.Load(ctx)
	report := pending.report
	if err == nil {
		updateState(e.host, func(state map[string]any) {
			report = pending.ApplyTo(state)
		})
	}
	span.SetAttributes(
		attribute.Bool("statesync.record_found", report.RecordFound),
		attribute.Int("statesync.applied", report.Applied),
	)
	e.logLocked(SyncEvent{
		Op:       OpRestore,
		Duration: time.Since(start),
		Report:   &report,
		Err:      err,
	})
	if err != nil {
		return err
	}
	if report.Restored() {
		metadata := map[string]any{"paths": report.FoundPaths(), "merged": report.Merged}
		e.emitLocked(ctx, activity.BuildRestoredEvent(e.eventInput(metadata, nil)))
	}
	return nil
}

func (e *Engine) persistLocked(ctx context.Context) (err error) {
	ctx, span := e.startSpan(ctx, OpPersist)
	defer func() { endSpan(span, err) }()

	start := time.Now()
	var record string
	readState(e.host, func(state map[string]any) {
		record, err = e.binding.Encode(state)
	})
	if err == nil && e.skipUnchanged && e.hasLast && recordsEqual(e.last, record) {
		span.SetAttributes(attribute.Bool("statesync.skipped", true))
		e.logLocked(SyncEvent{
			Op:       OpPersist,
			Duration: time.Since(start),
			Bytes:    len(record),
			Skipped:  true,
		})
		return nil
	}
	if err == nil {
		err = e.binding.Write(ctx, record)
	}
	e.logLocked(SyncEvent{
		Op:       OpPersist,
		Duration: time.Since(start),
		Bytes:    len(record),
		Err:      err,
	})
	if err != nil {
		e.emitLocked(ctx, activity.BuildPersistFailedEvent(e.eventInput(nil, err)))
		return err
	}

	var patch []byte
	if e.hasLast && e.emitter.Enabled() {
		patch = mergePatch(e.last, record)
	}
	e.last, e.hasLast = record, true
	input := e.eventInput(nil, nil)
	input.Patch = patch
	e.emitLocked(ctx, activity.BuildPersistedEvent(input))
	return nil
}

func (e *Engine) eventInput(metadata map[string]any, err error) activity.BindingEventInput {
	return activity.BindingEventInput{
		Binding: activity.BindingContext{
			Namespace:    e.binding.Namespace(),
			Keys:         e.binding.Paths(),
			Driver:       e.driver,
			AttachmentID: e.id,
		},
		Metadata: metadata,
		Err:      err,
	}
}

// recordsEqual treats byte-equal or JSON-equivalent records as unchanged.
func recordsEqual(previous, next string) bool {
	if previous == next {
		return true
	}
	return jsonpatch.Equal([]byte(previous), []byte(next))
}

// mergePatch returns the RFC 7386 patch between two JSON records, or nil when
// either side is not JSON.
func mergePatch(previous, next string) []byte {
	patch, err := jsonpatch.CreateMergePatch([]byte(previous), []byte(next))
	if err != nil || string(patch) == "{}" {
		return nil
	}
	return patch
}
