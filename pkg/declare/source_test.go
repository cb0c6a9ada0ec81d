package declare

import (
	"context"
	"errors"
	"testing"
	"time"

	statesync "github.com/goliatone/go-statesync"
	"github.com/goliatone/go-statesync/drivers/memory"
	"github.com/goliatone/go-statesync/pkg/reactive"
)

func mustParse(t *testing.T, body string) Document {
	t.Helper()
	doc, err := Parse("test.yaml", []byte(body))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return doc
}

func TestSourceResolvesConfigs(t *testing.T) {
	local := memory.New(memory.WithName("local"))
	session := memory.New(memory.WithName("session"))
	doc := mustParse(t, `
bindings:
  - namespace: vue4
    keys: [a]
    driver: local
  - namespace_expr: '"vue4-" + string(rand)'
    keys: [b, b]
    driver: session
    format: yaml
    merge: current
  - namespace: defaults
    keys: [c]
`)
	src, err := NewSource(doc, WithDriver("local", local), WithDrivers(Drivers{"session": session}))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	host := reactive.New(map[string]any{"a": 1.0, "b": 2.0, "rand": 17.0})
	configs, err := src.Resolve(host)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(configs) != 3 {
		t.Fatalf("expected 3 configs, got %d", len(configs))
	}

	if configs[0].Namespace != "vue4" || configs[0].Driver != local || configs[0].Merge != nil {
		t.Fatalf("unexpected first config %+v", configs[0])
	}
	if configs[1].Namespace != "vue4-17" || configs[1].Driver != session {
		t.Fatalf("unexpected second config %+v", configs[1])
	}
	if configs[1].Merge == nil {
		t.Fatalf("expected merge strategy on second config")
	}
	record, err := configs[1].Serialize(statesync.Projection{"b": "x"})
	if err != nil || record != "b: x\n" {
		t.Fatalf("expected yaml serializer, got %q err=%v", record, err)
	}
	if configs[2].Driver != nil {
		t.Fatalf("expected nil driver so the coordinator default applies")
	}
}

func TestSourceExpressionsSeeCopyOfState(t *testing.T) {
	doc := mustParse(t, `
engine: cel
bindings:
  - namespace_expr: 'user.id'
    keys: [user]
`)
	src, err := NewSource(doc)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	host := reactive.New(map[string]any{"user": map[string]any{"id": "u-1"}})
	configs, err := src.Resolve(host)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if configs[0].Namespace != "u-1" {
		t.Fatalf("expected namespace from state, got %q", configs[0].Namespace)
	}
}

func TestSourceRejectsBadNamespaces(t *testing.T) {
	doc := mustParse(t, `
bindings:
  - namespace_expr: 'user'
    keys: [user]
`)
	src, err := NewSource(doc)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	host := reactive.New(map[string]any{"user": map[string]any{"id": "u-1"}})
	if _, err := src.Resolve(host); !errors.Is(err, ErrNamespaceType) {
		t.Fatalf("expected ErrNamespaceType, got %v", err)
	}
}

func TestNewSourceChecksDrivers(t *testing.T) {
	doc := mustParse(t, `
bindings:
  - namespace: vue1
    keys: [a]
    driver: missing
`)
	if _, err := NewSource(doc); !errors.Is(err, ErrUnknownDriver) {
		t.Fatalf("expected ErrUnknownDriver, got %v", err)
	}
}

func TestSourceMetadataAndClock(t *testing.T) {
	doc := mustParse(t, `
bindings:
  - namespace_expr: 'metadata.app + "-" + now.Format("2006")'
    keys: [a]
`)
	fixed := time.Date(2031, 5, 1, 0, 0, 0, 0, time.UTC)
	src, err := NewSource(doc,
		WithMetadata(map[string]any{"app": "notes"}),
		WithClock(func() time.Time { return fixed }),
		WithEvaluatorOptions(WithProgramCache(NewProgramCache())),
	)
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	configs, err := src.Resolve(reactive.New(nil))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if configs[0].Namespace != "notes-2031" {
		t.Fatalf("unexpected namespace %q", configs[0].Namespace)
	}
}

func TestMergeStrategies(t *testing.T) {
	persisted := statesync.Projection{"a": map[string]any{"x": 1.0}}
	current := statesync.Projection{"a": map[string]any{"x": 2.0, "y": 3.0}}

	currentWins, err := MergeStrategy(MergeCurrent)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	got := currentWins(persisted, current)["a"].(map[string]any)
	if got["x"] != 2.0 || got["y"] != 3.0 {
		t.Fatalf("expected current values to win, got %v", got)
	}

	deep, _ := MergeStrategy(MergeDeep)
	got = deep(persisted, current)["a"].(map[string]any)
	if got["x"] != 1.0 || got["y"] != 3.0 {
		t.Fatalf("expected persisted values to win with current fill, got %v", got)
	}

	if fn, err := MergeStrategy(MergePersisted); err != nil || fn != nil {
		t.Fatalf("expected nil merge for persisted strategy")
	}
}

func TestDeclarativeAttachEndToEnd(t *testing.T) {
	ctx := context.Background()
	local := memory.New(memory.WithName("local"), memory.WithRecords(map[string]string{
		"prefs-42": `{"theme":"dark"}`,
	}))
	doc := mustParse(t, `
bindings:
  - namespace_expr: '"prefs-" + user.id'
    keys: [theme]
    driver: local
`)
	src, err := NewSource(doc, WithDriver("local", local))
	if err != nil {
		t.Fatalf("new source: %v", err)
	}

	coordinator := statesync.NewCoordinator()
	host := reactive.New(map[string]any{"user": map[string]any{"id": "42"}, "theme": "light"})
	if _, err := coordinator.Attach(ctx, host, src); err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer coordinator.Detach(host)

	if got, _ := host.Get("theme"); got != "dark" {
		t.Fatalf("expected restored theme, got %v", got)
	}
	host.Set("theme", "solarized")
	if err := host.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if record, _, _ := local.Get(ctx, "prefs-42"); record != `{"theme":"solarized"}` {
		t.Fatalf("unexpected record %q", record)
	}
}
