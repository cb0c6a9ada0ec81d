package statesync

import "fmt"

// Source yields the binding configurations for one host. It is evaluated
// exactly once per Attach.
type Source interface {
	Resolve(host Host) ([]Config, error)
}

// Resolve makes a single Config usable as a Source.
func (c Config) Resolve(Host) ([]Config, error) {
	return []Config{c}, nil
}

// Configs is a Source of several independent bindings.
type Configs []Config

// Resolve implements Source.
func (c Configs) Resolve(Host) ([]Config, error) {
	return append([]Config(nil), c...), nil
}

// Factory computes a configuration from the host, e.g. to derive a namespace
// from instance state.
type Factory func(host Host) (Config, error)

// Resolve implements Source.
func (f Factory) Resolve(host Host) ([]Config, error) {
	if f == nil {
		return nil, ErrNilSource
	}
	cfg, err := f(host)
	if err != nil {
		return nil, fmt.Errorf("statesync: factory: %w", err)
	}
	return []Config{cfg}, nil
}

// MultiFactory computes several configurations from the host.
type MultiFactory func(host Host) ([]Config, error)

// Resolve implements Source.
func (f MultiFactory) Resolve(host Host) ([]Config, error) {
	if f == nil {
		return nil, ErrNilSource
	}
	configs, err := f(host)
	if err != nil {
		return nil, fmt.Errorf("statesync: factory: %w", err)
	}
	return configs, nil
}
