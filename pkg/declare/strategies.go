package declare

import (
	"fmt"
	"strings"

	statesync "github.com/goliatone/go-statesync"
	"github.com/goliatone/go-statesync/layering"
)

// CodecFor maps a format name onto a codec. An empty name selects JSON.
func CodecFor(format string) (statesync.Codec, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatJSON:
		return statesync.JSONCodec(), nil
	case FormatYAML, "yml":
		return statesync.YAMLCodec(), nil
	default:
		return statesync.Codec{}, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// MergeStrategy maps a strategy name onto a merge function. "persisted" and
// the empty name apply stored values verbatim and return nil.
func MergeStrategy(name string) (statesync.MergeFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", MergePersisted:
		return nil, nil
	case MergeCurrent:
		return preferCurrent, nil
	case MergeDeep:
		return statesync.DeepMerge, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMerge, name)
	}
}

// preferCurrent keeps in-memory values and only restores what state lacks.
func preferCurrent(persisted, current statesync.Projection) statesync.Projection {
	return layering.MergeLayers(current, persisted)
}

// Drivers maps the driver names used in documents onto driver instances.
type Drivers map[string]statesync.Driver

// Lookup returns the driver registered as name. An empty name yields nil so
// the coordinator default applies.
func (d Drivers) Lookup(name string) (statesync.Driver, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	driver, ok := d[name]
	if !ok || driver == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, name)
	}
	return driver, nil
}
