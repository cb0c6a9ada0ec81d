package statesync

import (
	"encoding/json"
	"fmt"

	"github.com/goccy/go-yaml"

	"github.com/goliatone/go-statesync/layering"
)

// Projection is the minimal subtree of host state covering the watched paths.
type Projection map[string]any

// MergeFunc combines the persisted and current projections during restore. The
// returned projection replaces host state for every watched top-level key it
// contains; keys it omits are left as they are.
type MergeFunc func(persisted, current Projection) Projection

// SerializeFunc encodes a projection into the stored record.
type SerializeFunc func(Projection) (string, error)

// DeserializeFunc decodes a stored record. Errors are treated as absence.
type DeserializeFunc func(string) (Projection, error)

// Codec pairs a serializer with its matching deserializer.
type Codec struct {
	Name        string
	Serialize   SerializeFunc
	Deserialize DeserializeFunc
}

// JSONCodec is the default record format.
func JSONCodec() Codec {
	return Codec{Name: "json", Serialize: SerializeJSON, Deserialize: DeserializeJSON}
}

// YAMLCodec stores records as YAML documents.
func YAMLCodec() Codec {
	return Codec{Name: "yaml", Serialize: SerializeYAML, Deserialize: DeserializeYAML}
}

// SerializeJSON encodes p as a JSON object.
func SerializeJSON(p Projection) (string, error) {
	if p == nil {
		p = Projection{}
	}
	raw, err := json.Marshal(map[string]any(p))
	if err != nil {
		return "", fmt.Errorf("serialize json: %w", err)
	}
	return string(raw), nil
}

// DeserializeJSON decodes a JSON object record. Non-object payloads are
// rejected so they read as absence.
func DeserializeJSON(record string) (Projection, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(record), &out); err != nil {
		return nil, fmt.Errorf("deserialize json: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("deserialize json: record is not an object")
	}
	return Projection(out), nil
}

// SerializeYAML encodes p as a YAML mapping. Whole floats are written as
// integers.
func SerializeYAML(p Projection) (string, error) {
	if p == nil {
		p = Projection{}
	}
	raw, err := yaml.MarshalWithOptions(map[string]any(p), yaml.AutoInt())
	if err != nil {
		return "", fmt.Errorf("serialize yaml: %w", err)
	}
	return string(raw), nil
}

// DeserializeYAML decodes a YAML mapping record.
func DeserializeYAML(record string) (Projection, error) {
	var out map[string]any
	if err := yaml.Unmarshal([]byte(record), &out); err != nil {
		return nil, fmt.Errorf("deserialize yaml: %w", err)
	}
	if out == nil {
		return nil, fmt.Errorf("deserialize yaml: record is not a mapping")
	}
	return Projection(out), nil
}

// DeepMerge is a MergeFunc that keeps persisted values but fills keys only
// present in current state, recursing through nested maps.
func DeepMerge(persisted, current Projection) Projection {
	return layering.MergeLayers(persisted, current)
}
