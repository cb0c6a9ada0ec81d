package statesync

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type pathFixture struct {
	Description string `json:"description"`
	Get         []struct {
		Name  string         `json:"name"`
		Root  map[string]any `json:"root"`
		Path  string         `json:"path"`
		Found bool           `json:"found"`
		Value any            `json:"value"`
	} `json:"get"`
	Set []struct {
		Name   string         `json:"name"`
		Root   map[string]any `json:"root"`
		Path   string         `json:"path"`
		Value  any            `json:"value"`
		OK     bool           `json:"ok"`
		Expect map[string]any `json:"expect"`
	} `json:"set"`
}

func loadFixture[T any](t *testing.T, name string) T {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("failed to read fixture %q: %v", name, err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("failed to unmarshal fixture %q: %v", name, err)
	}
	return out
}

func TestGetPathFromFixtures(t *testing.T) {
	fx := loadFixture[pathFixture](t, "paths.json")
	for _, tc := range fx.Get {
		t.Run(tc.Name, func(t *testing.T) {
			value, found := GetPath(tc.Root, tc.Path)
			if found != tc.Found {
				t.Fatalf("expected found=%v, got %v (value %v)", tc.Found, found, value)
			}
			if diff := cmp.Diff(tc.Value, value); diff != "" {
				t.Fatalf("value mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetPathFromFixtures(t *testing.T) {
	fx := loadFixture[pathFixture](t, "paths.json")
	for _, tc := range fx.Set {
		t.Run(tc.Name, func(t *testing.T) {
			ok := SetPath(tc.Root, tc.Path, tc.Value)
			if ok != tc.OK {
				t.Fatalf("expected ok=%v, got %v", tc.OK, ok)
			}
			if diff := cmp.Diff(tc.Expect, tc.Root); diff != "" {
				t.Fatalf("root mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSetPathMutatesRootInPlace(t *testing.T) {
	root := map[string]any{}
	alias := root
	if !SetPath(root, "a.b.c", 5.0) {
		t.Fatalf("expected set to succeed")
	}
	if _, ok := GetPath(alias, "a.b.c"); !ok {
		t.Fatalf("expected mutation visible through the original reference")
	}
}

func TestSetPathNilRoot(t *testing.T) {
	if SetPath(nil, "a", 1) {
		t.Fatalf("expected nil root to be refused")
	}
	if _, ok := GetPath(nil, "a"); ok {
		t.Fatalf("expected nil root to resolve nothing")
	}
}

func TestValidatePath(t *testing.T) {
	valid := []string{"a", "a.b.c", "list.0"}
	for _, path := range valid {
		if err := ValidatePath(path); err != nil {
			t.Fatalf("expected %q valid, got %v", path, err)
		}
	}
	invalid := []string{"", "  ", "a..b", ".a", "a."}
	for _, path := range invalid {
		if err := ValidatePath(path); !errors.Is(err, ErrInvalidPath) {
			t.Fatalf("expected ErrInvalidPath for %q, got %v", path, err)
		}
	}
}

func TestRootKeyAndSplit(t *testing.T) {
	if RootKey("a.b.c") != "a" || RootKey("solo") != "solo" {
		t.Fatalf("unexpected root keys")
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, SplitPath("a.b.c")); diff != "" {
		t.Fatalf("split mismatch (-want +got):\n%s", diff)
	}
	if SplitPath("") != nil {
		t.Fatalf("expected nil segments for empty path")
	}
}
