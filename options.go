package statesync

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-statesync/pkg/activity"
)

// Option configures a Coordinator.
type Option func(*coordinatorConfig)

// ErrorHandler is told about persist failures raised from change
// notifications, after they are logged and before they are returned to the
// host.
type ErrorHandler func(engine *Engine, err error)

type coordinatorConfig struct {
	defaultDriver Driver
	logger        Logger
	hooks         activity.Hooks
	activity      activity.Config
	activitySet   bool
	actorID       string
	tracer        trace.Tracer
	skipUnchanged bool
	onError       ErrorHandler
}

func applyOptions(opts []Option) coordinatorConfig {
	cfg := coordinatorConfig{}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.logger == nil {
		cfg.logger = noopLogger{}
	}
	if cfg.tracer == nil {
		cfg.tracer = defaultTracer()
	}
	if !cfg.activitySet {
		cfg.activity = activity.Config{Enabled: len(cfg.hooks) > 0}
	}
	if cfg.actorID != "" {
		cfg.activity.ActorID = cfg.actorID
	}
	return cfg
}

// WithDefaultDriver sets the driver used by bindings that do not name one.
func WithDefaultDriver(driver Driver) Option {
	return func(cfg *coordinatorConfig) {
		cfg.defaultDriver = driver
	}
}

// WithLogger attaches a logger. A nil logger discards events.
func WithLogger(logger Logger) Option {
	return func(cfg *coordinatorConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithActivityHooks attaches activity hooks; nil entries are dropped.
func WithActivityHooks(hooks activity.Hooks) Option {
	return func(cfg *coordinatorConfig) {
		for _, hook := range hooks {
			if hook != nil {
				cfg.hooks = append(cfg.hooks, hook)
			}
		}
	}
}

// WithActivityConfig overrides activity emission defaults (enabled flag,
// channel, actor).
func WithActivityConfig(config activity.Config) Option {
	return func(cfg *coordinatorConfig) {
		cfg.activity = config
		cfg.activitySet = true
	}
}

// WithActor stamps activity events with actorID unless an event carries its
// own actor.
func WithActor(actorID string) Option {
	return func(cfg *coordinatorConfig) {
		cfg.actorID = actorID
	}
}

// WithTracer replaces the OpenTelemetry tracer used for restore and persist
// spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(cfg *coordinatorConfig) {
		cfg.tracer = tracer
	}
}

// WithSkipUnchanged skips driver writes when the encoded record equals the last
// one this engine wrote.
func WithSkipUnchanged() Option {
	return func(cfg *coordinatorConfig) {
		cfg.skipUnchanged = true
	}
}

// WithErrorHandler registers a callback for persist failures raised from
// change notifications.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(cfg *coordinatorConfig) {
		cfg.onError = handler
	}
}
