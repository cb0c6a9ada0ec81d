package declare

import (
	"fmt"
	"strconv"
	"time"

	statesync "github.com/goliatone/go-statesync"
	"github.com/goliatone/go-statesync/layering"
)

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithDrivers registers the drivers bindings may name.
func WithDrivers(drivers Drivers) SourceOption {
	return func(s *Source) {
		for name, driver := range drivers {
			s.drivers[name] = driver
		}
	}
}

// WithDriver registers one named driver.
func WithDriver(name string, driver statesync.Driver) SourceOption {
	return func(s *Source) {
		s.drivers[name] = driver
	}
}

// WithEvaluator overrides the evaluator chosen by the document engine.
func WithEvaluator(evaluator Evaluator) SourceOption {
	return func(s *Source) {
		s.evaluator = evaluator
	}
}

// WithEvaluatorOptions configures the evaluator built from the document engine.
func WithEvaluatorOptions(opts ...EvaluatorOption) SourceOption {
	return func(s *Source) {
		s.evalOpts = append(s.evalOpts, opts...)
	}
}

// WithMetadata exposes values to expressions under "metadata".
func WithMetadata(metadata map[string]any) SourceOption {
	return func(s *Source) {
		s.metadata = metadata
	}
}

// WithClock fixes the value bound to "now".
func WithClock(now func() time.Time) SourceOption {
	return func(s *Source) {
		if now != nil {
			s.now = now
		}
	}
}

// Source resolves a Document into binding configurations for one host. It
// implements statesync.Source.
type Source struct {
	doc       Document
	drivers   Drivers
	evaluator Evaluator
	evalOpts  []EvaluatorOption
	metadata  map[string]any
	now       func() time.Time
}

var _ statesync.Source = (*Source)(nil)

// NewSource prepares doc for resolution. Driver names are checked here so a
// typo fails before any host is attached.
func NewSource(doc Document, opts ...SourceOption) (*Source, error) {
	s := &Source{doc: doc, drivers: Drivers{}, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	for idx, spec := range doc.Bindings {
		if _, err := s.drivers.Lookup(spec.Driver); err != nil {
			return nil, fmt.Errorf("declare: %s: %w", spec.label(idx), err)
		}
	}
	if s.evaluator == nil && s.needsEvaluator() {
		evaluator, err := NewEvaluator(doc.Engine, s.evalOpts...)
		if err != nil {
			return nil, err
		}
		s.evaluator = evaluator
	}
	return s, nil
}

// Document returns the document this source resolves.
func (s *Source) Document() Document { return s.doc }

// Resolve implements statesync.Source. Namespace expressions see a copy of
// host state, so they cannot mutate it.
func (s *Source) Resolve(host statesync.Host) ([]statesync.Config, error) {
	var state map[string]any
	if locked, ok := host.(statesync.LockedHost); ok {
		locked.Read(func(live map[string]any) { state = layering.Clone(live) })
	} else if host != nil {
		state = layering.Clone(host.State())
	}
	now := s.now()

	configs := make([]statesync.Config, 0, len(s.doc.Bindings))
	for idx, spec := range s.doc.Bindings {
		label := spec.label(idx)

		namespace := spec.Namespace
		if spec.NamespaceExpr != "" {
			value, err := s.evaluator.Evaluate(Context{
				State:    state,
				Metadata: s.metadata,
				Index:    idx,
				Binding:  label,
				Now:      &now,
			}, spec.NamespaceExpr)
			if err != nil {
				return nil, err
			}
			namespace, err = namespaceString(value)
			if err != nil {
				return nil, fmt.Errorf("declare: %s: %w", label, err)
			}
		}

		driver, err := s.drivers.Lookup(spec.Driver)
		if err != nil {
			return nil, fmt.Errorf("declare: %s: %w", label, err)
		}
		codec, err := CodecFor(spec.Format)
		if err != nil {
			return nil, fmt.Errorf("declare: %s: %w", label, err)
		}
		merge, err := MergeStrategy(spec.Merge)
		if err != nil {
			return nil, fmt.Errorf("declare: %s: %w", label, err)
		}

		cfg := statesync.Config{
			Namespace: namespace,
			Keys:      append([]string(nil), spec.Keys...),
			Driver:    driver,
			Merge:     merge,
		}
		configs = append(configs, cfg.WithCodec(codec))
	}
	return configs, nil
}

func (s *Source) needsEvaluator() bool {
	for _, spec := range s.doc.Bindings {
		if spec.NamespaceExpr != "" {
			return true
		}
	}
	return false
}

func namespaceString(value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("%w, got %T", ErrNamespaceType, value)
	}
}
