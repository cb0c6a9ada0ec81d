// Package declare builds statesync binding sources from YAML or JSON
// documents. A document lists bindings by namespace, watched keys, driver
// name, record format and merge strategy; a namespace may instead be computed
// per host with an expression (expr by default, CEL, or JS when built with the
// js_eval tag) evaluated against the host state at attach time.
package declare

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/goliatone/go-statesync/internal/hydrate"
)

// Format names accepted by BindingSpec.Format.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Merge strategy names accepted by BindingSpec.Merge.
const (
	MergePersisted = "persisted"
	MergeCurrent   = "current"
	MergeDeep      = "deep"
)

// Document is the root of a binding file.
type Document struct {
	// Engine selects the expression engine for namespace_expr fields.
	Engine   string        `json:"engine,omitempty"`
	Bindings []BindingSpec `json:"bindings"`
}

// BindingSpec declares one binding.
type BindingSpec struct {
	Name          string   `json:"name,omitempty"`
	Namespace     string   `json:"namespace,omitempty"`
	NamespaceExpr string   `json:"namespace_expr,omitempty"`
	Keys          []string `json:"keys"`
	Driver        string   `json:"driver,omitempty"`
	Format        string   `json:"format,omitempty"`
	Merge         string   `json:"merge,omitempty"`
}

func (b BindingSpec) label(idx int) string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("bindings[%d]", idx)
}

// Load reads and parses a binding document from path.
func Load(path string) (Document, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Document{}, fmt.Errorf("declare: read %s: %w", path, err)
	}
	return Parse(filepath.Base(path), raw)
}

// Parse decodes a YAML (or JSON) binding document. name labels errors.
func Parse(name string, data []byte) (Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Document{}, fmt.Errorf("declare: %s is empty", name)
	}
	var payload map[string]any
	if err := yaml.Unmarshal(data, &payload); err != nil {
		return Document{}, fmt.Errorf("declare: parse %s: %w", name, err)
	}
	if payload == nil {
		return Document{}, fmt.Errorf("declare: %s is empty", name)
	}

	decoder := hydrate.NewDecoder[Document](
		hydrate.WithPreHook[Document](expandShorthand),
		hydrate.WithDisallowUnknownFields[Document](),
		hydrate.WithPostHook[Document](validateDocument),
	)
	return decoder.Decode(hydrate.Context{Document: name}, payload)
}

// expandShorthand accepts a single top-level "binding" object and
// comma-separated "keys" strings.
func expandShorthand(_ hydrate.Context, payload map[string]any) (map[string]any, error) {
	if single, ok := payload["binding"]; ok {
		if _, both := payload["bindings"]; both {
			return nil, fmt.Errorf("binding and bindings are mutually exclusive")
		}
		payload["bindings"] = []any{single}
		delete(payload, "binding")
	}

	list, _ := payload["bindings"].([]any)
	for _, item := range list {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		raw, ok := entry["keys"].(string)
		if !ok {
			continue
		}
		var keys []any
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				keys = append(keys, part)
			}
		}
		entry["keys"] = keys
	}
	return payload, nil
}

func validateDocument(_ hydrate.Context, doc *Document) error {
	if len(doc.Bindings) == 0 {
		return fmt.Errorf("no bindings declared")
	}
	if _, err := knownEngine(doc.Engine); err != nil {
		return err
	}
	for idx, spec := range doc.Bindings {
		if spec.Namespace != "" && spec.NamespaceExpr != "" {
			return fmt.Errorf("%s: %w", spec.label(idx), ErrNamespaceConflict)
		}
		if _, err := CodecFor(spec.Format); err != nil {
			return fmt.Errorf("%s: %w", spec.label(idx), err)
		}
		if _, err := MergeStrategy(spec.Merge); err != nil {
			return fmt.Errorf("%s: %w", spec.label(idx), err)
		}
	}
	return nil
}

func knownEngine(engine string) (string, error) {
	switch name := strings.ToLower(strings.TrimSpace(engine)); name {
	case "", EngineExpr, EngineCEL, EngineJS:
		return name, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEngine, engine)
	}
}
