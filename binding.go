package statesync

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-statesync/layering"
)

// Config describes one binding between watched state paths and a storage
// namespace.
type Config struct {
	// Namespace is the storage key the whole projection is written under.
	Namespace string
	// Keys lists the watched dotted paths. Duplicates are collapsed.
	Keys []string
	// Driver is the backend; nil selects the coordinator default.
	Driver Driver
	// Merge, when set, reconciles persisted and current values on restore.
	Merge       MergeFunc
	Serialize   SerializeFunc
	Deserialize DeserializeFunc
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Namespace) == "" {
		return ErrNamespaceRequired
	}
	if len(c.Keys) == 0 {
		return ErrKeysRequired
	}
	for _, key := range c.Keys {
		if err := ValidatePath(key); err != nil {
			return err
		}
	}
	return nil
}

// WithCodec returns a copy of c using codec for serialization.
func (c Config) WithCodec(codec Codec) Config {
	c.Serialize = codec.Serialize
	c.Deserialize = codec.Deserialize
	return c
}

// Binding owns one namespace on one driver and knows how to restore, capture
// and persist the watched projection of a host state map.
type Binding struct {
	namespace   string
	paths       []string
	roots       []string
	driver      Driver
	merge       MergeFunc
	serialize   SerializeFunc
	deserialize DeserializeFunc
}

// NewBinding validates cfg and builds a Binding. fallback is used when
// cfg.Driver is nil.
func NewBinding(cfg Config, fallback Driver) (*Binding, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	driver := cfg.Driver
	if driver == nil {
		driver = fallback
	}
	if driver == nil {
		return nil, fmt.Errorf("statesync: namespace %q has no driver", cfg.Namespace)
	}

	b := &Binding{
		namespace:   strings.TrimSpace(cfg.Namespace),
		driver:      driver,
		merge:       cfg.Merge,
		serialize:   cfg.Serialize,
		deserialize: cfg.Deserialize,
	}
	if b.serialize == nil {
		b.serialize = SerializeJSON
	}
	if b.deserialize == nil {
		b.deserialize = DeserializeJSON
	}

	seenPaths := make(map[string]struct{}, len(cfg.Keys))
	seenRoots := make(map[string]struct{}, len(cfg.Keys))
	for _, key := range cfg.Keys {
		if _, ok := seenPaths[key]; ok {
			continue
		}
		seenPaths[key] = struct{}{}
		b.paths = append(b.paths, key)

		root := RootKey(key)
		if _, ok := seenRoots[root]; ok {
			continue
		}
		seenRoots[root] = struct{}{}
		b.roots = append(b.roots, root)
	}
	return b, nil
}

// Namespace returns the storage key.
func (b *Binding) Namespace() string { return b.namespace }

// Paths returns the watched paths in configuration order.
func (b *Binding) Paths() []string { return append([]string(nil), b.paths...) }

// RootKeys returns the distinct top-level keys of the watched paths.
func (b *Binding) RootKeys() []string { return append([]string(nil), b.roots...) }

// Driver returns the backend the binding writes to.
func (b *Binding) Driver() Driver { return b.driver }

// RestoreInto reads the persisted record and applies it onto state. A missing
// or undecodable record leaves state untouched and is not an error; only
// driver read failures are returned.
func (b *Binding) RestoreInto(ctx context.Context, state map[string]any) (RestoreReport, error) {
	pending, err := b.Load(ctx)
	if err != nil {
		return pending.report, err
	}
	return pending.ApplyTo(state), nil
}

// PendingRestore is a decoded record waiting to be applied to host state.
type PendingRestore struct {
	binding *Binding
	report  RestoreReport
	subset  Projection
}

// Load reads and decodes the persisted record without touching host state.
func (b *Binding) Load(ctx context.Context) (PendingRestore, error) {
	pending := PendingRestore{binding: b, report: RestoreReport{Namespace: b.namespace}}

	record, ok, err := b.driver.Get(ctx, b.namespace)
	if err != nil {
		return pending, wrapStorageError("get", b.namespace, err)
	}
	if !ok {
		return pending, nil
	}
	pending.report.RecordFound = true

	persisted, err := b.deserialize(record)
	if err != nil || persisted == nil {
		pending.report.Corrupt = true
		return pending, nil
	}

	subset := Projection{}
	for _, path := range b.paths {
		value, found := GetPath(persisted, path)
		pending.report.Paths = append(pending.report.Paths, PathProvenance{Path: path, Found: found, Value: value})
		if found {
			SetPath(subset, path, layering.Clone(value))
		}
	}
	if len(subset) > 0 {
		pending.subset = subset
	}
	return pending, nil
}

// ApplyTo writes the loaded values onto state and reports what changed. It is
// a no-op when nothing was loaded.
func (p PendingRestore) ApplyTo(state map[string]any) RestoreReport {
	report := p.report
	report.Paths = append([]PathProvenance(nil), p.report.Paths...)
	if len(p.subset) == 0 {
		return report
	}
	b := p.binding

	if b.merge != nil {
		merged := b.merge(layering.Clone(p.subset), b.CaptureProjection(state))
		report.Merged = true
		// The merge result replaces whole top-level keys.
		for _, root := range b.roots {
			value, found := merged[root]
			if !found {
				continue
			}
			if SetPath(state, root, layering.Clone(value)) {
				report.Applied++
			}
		}
		return report
	}

	for _, path := range b.paths {
		value, found := GetPath(p.subset, path)
		if !found {
			continue
		}
		if SetPath(state, path, layering.Clone(value)) {
			report.Applied++
		}
	}
	return report
}

// CaptureProjection copies the watched paths out of state. Sibling keys of a
// watched path are never included; missing paths are omitted.
func (b *Binding) CaptureProjection(state map[string]any) Projection {
	projection := Projection{}
	for _, path := range b.paths {
		value, ok := GetPath(state, path)
		if !ok {
			continue
		}
		SetPath(projection, path, layering.Clone(value))
	}
	return projection
}

// Encode captures and serializes the current projection without writing it.
func (b *Binding) Encode(state map[string]any) (string, error) {
	record, err := b.serialize(b.CaptureProjection(state))
	if err != nil {
		return "", wrapStorageError("serialize", b.namespace, err)
	}
	return record, nil
}

// Write stores record under the binding namespace.
func (b *Binding) Write(ctx context.Context, record string) error {
	if err := b.driver.Set(ctx, b.namespace, record); err != nil {
		return wrapStorageError("set", b.namespace, err)
	}
	return nil
}

// Persist captures, serializes and writes the projection, overwriting any
// previous record.
func (b *Binding) Persist(ctx context.Context, state map[string]any) (string, error) {
	record, err := b.Encode(state)
	if err != nil {
		return "", err
	}
	if err := b.Write(ctx, record); err != nil {
		return "", err
	}
	return record, nil
}
