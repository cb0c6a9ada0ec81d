package statesync

import (
	"context"
	"fmt"
	"sync"

	"github.com/goliatone/go-statesync/drivers/memory"
	"github.com/goliatone/go-statesync/pkg/activity"
)

// Coordinator attaches hosts to any number of independent bindings and keeps
// track of the engines it started for each host.
type Coordinator struct {
	mu      sync.Mutex
	cfg     coordinatorConfig
	emitter *activity.Emitter
	engines map[Host][]*Engine

	// closes counts Close calls; detaches counts Detach calls per host while
	// an Attach for that host is in flight.
	closes    uint64
	detaches  map[Host]uint64
	attaching map[Host]int
}

// NewCoordinator builds a coordinator. Without WithDefaultDriver, bindings
// that name no driver share one in-memory store owned by the coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	cfg := applyOptions(opts)
	if cfg.defaultDriver == nil {
		cfg.defaultDriver = memory.New()
	}
	return &Coordinator{
		cfg:     cfg,
		emitter: activity.NewEmitter(cfg.hooks, cfg.activity),
		engines:   map[Host][]*Engine{},
		detaches:  map[Host]uint64{},
		attaching: map[Host]int{},
	}
}

// DefaultDriver returns the driver used by bindings without one.
func (c *Coordinator) DefaultDriver() Driver { return c.cfg.defaultDriver }

// Attach resolves src against host once, validates every resulting Config,
// then starts one engine per binding in order. Each engine is registered as
// soon as it starts. If any engine fails to start, the engines started by this
// call are stopped and the error is returned. A Detach of host or a Close
// that lands while Attach is still starting engines stops them all and Attach
// returns an error wrapping ErrDetached.
func (c *Coordinator) Attach(ctx context.Context, host Host, src Source) ([]*Engine, error) {
	if host == nil {
		return nil, &ConfigError{Index: -1, Err: ErrNilHost}
	}
	if src == nil {
		return nil, &ConfigError{Index: -1, Err: ErrNilSource}
	}

	configs, err := src.Resolve(host)
	if err != nil {
		return nil, err
	}
	if len(configs) == 0 {
		return nil, ErrNoBindings
	}

	bindings := make([]*Binding, 0, len(configs))
	for idx, cfg := range configs {
		binding, err := NewBinding(cfg, c.cfg.defaultDriver)
		if err != nil {
			return nil, &ConfigError{Index: idx, Namespace: cfg.Namespace, Err: err}
		}
		bindings = append(bindings, binding)
	}

	c.mu.Lock()
	c.attaching[host]++
	generation := c.generationLocked(host)
	c.mu.Unlock()
	defer c.doneAttaching(host)

	started := make([]*Engine, 0, len(bindings))
	for _, binding := range bindings {
		engine := newEngine(binding, host, c.cfg, c.emitter)
		if err := engine.Start(ctx); err != nil {
			c.abandon(host, started)
			return nil, err
		}
		started = append(started, engine)

		c.mu.Lock()
		if c.generationLocked(host) != generation {
			c.mu.Unlock()
			c.abandon(host, started)
			return nil, fmt.Errorf("statesync: host detached during attach: %w", ErrDetached)
		}
		c.engines[host] = append(c.engines[host], engine)
		c.mu.Unlock()
	}
	return append([]*Engine(nil), started...), nil
}

func (c *Coordinator) generationLocked(host Host) uint64 {
	return c.closes + c.detaches[host]
}

func (c *Coordinator) doneAttaching(host Host) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attaching[host]--
	if c.attaching[host] <= 0 {
		delete(c.attaching, host)
		delete(c.detaches, host)
	}
}

// abandon unregisters and stops engines started by a failed Attach.
func (c *Coordinator) abandon(host Host, started []*Engine) {
	c.mu.Lock()
	if current, ok := c.engines[host]; ok {
		kept := current[:0:0]
		for _, engine := range current {
			if !containsEngine(started, engine) {
				kept = append(kept, engine)
			}
		}
		if len(kept) == 0 {
			delete(c.engines, host)
		} else {
			c.engines[host] = kept
		}
	}
	c.mu.Unlock()

	for _, engine := range started {
		engine.Stop()
	}
}

func containsEngine(engines []*Engine, target *Engine) bool {
	for _, engine := range engines {
		if engine == target {
			return true
		}
	}
	return false
}

// Detach stops every engine attached for host. Unknown hosts are a no-op.
func (c *Coordinator) Detach(host Host) {
	if host == nil {
		return
	}
	c.mu.Lock()
	engines := c.engines[host]
	delete(c.engines, host)
	if c.attaching[host] > 0 {
		c.detaches[host]++
	}
	c.mu.Unlock()

	for _, engine := range engines {
		engine.Stop()
	}
}

// Engines returns the engines currently attached for host.
func (c *Coordinator) Engines(host Host) []*Engine {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Engine(nil), c.engines[host]...)
}

// Hosts reports how many hosts have live attachments.
func (c *Coordinator) Hosts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.engines)
}

// Flush forces a persist on every engine attached for host and returns the
// first failure.
func (c *Coordinator) Flush(ctx context.Context, host Host) error {
	for _, engine := range c.Engines(host) {
		if err := engine.Flush(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Close detaches every host.
func (c *Coordinator) Close() {
	c.mu.Lock()
	all := c.engines
	c.engines = map[Host][]*Engine{}
	c.closes++
	c.mu.Unlock()

	for _, engines := range all {
		for _, engine := range engines {
			engine.Stop()
		}
	}
}
