package statesync

import (
	"fmt"
	"strconv"
	"strings"
)

// PathSeparator splits a watched path into segments.
const PathSeparator = "."

// SplitPath breaks a dotted path into its segments.
func SplitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, PathSeparator)
}

// RootKey returns the top-level key a path points into.
func RootKey(path string) string {
	root, _, _ := strings.Cut(path, PathSeparator)
	return root
}

// ValidatePath reports ErrInvalidPath for empty paths or paths with empty
// segments ("a..b", ".a", "a.").
func ValidatePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is empty", ErrInvalidPath)
	}
	for _, segment := range SplitPath(path) {
		if segment == "" {
			return fmt.Errorf("%w: %q has an empty segment", ErrInvalidPath, path)
		}
	}
	return nil
}

// GetPath resolves path inside root. Missing keys, out of range indexes and
// scalar intermediates all report (nil, false); absence is not an error.
func GetPath(root map[string]any, path string) (any, bool) {
	if root == nil {
		return nil, false
	}
	segments := SplitPath(path)
	if len(segments) == 0 {
		return nil, false
	}

	var current any = root
	for _, segment := range segments {
		next, ok := child(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

// SetPath assigns value at path inside root, creating empty maps for missing
// intermediate keys. root is mutated in place. It returns false, leaving root
// untouched, when an intermediate is a scalar or a slice index is invalid.
func SetPath(root map[string]any, path string, value any) bool {
	if root == nil {
		return false
	}
	segments := SplitPath(path)
	if len(segments) == 0 || !settable(root, segments) {
		return false
	}

	var current any = root
	for _, segment := range segments[:len(segments)-1] {
		switch container := current.(type) {
		case map[string]any:
			next, ok := container[segment]
			if !ok || next == nil {
				next = map[string]any{}
				container[segment] = next
			}
			current = next
		case []any:
			idx, ok := sliceIndex(container, segment)
			if !ok {
				return false
			}
			if container[idx] == nil {
				container[idx] = map[string]any{}
			}
			current = container[idx]
		default:
			return false
		}
	}

	last := segments[len(segments)-1]
	switch container := current.(type) {
	case map[string]any:
		container[last] = value
		return true
	case []any:
		idx, ok := sliceIndex(container, last)
		if !ok {
			return false
		}
		container[idx] = value
		return true
	default:
		return false
	}
}

// settable walks the existing part of the path without mutating anything. Once
// a segment is missing, the remainder is created as fresh maps and cannot fail.
func settable(root map[string]any, segments []string) bool {
	var current any = root
	for _, segment := range segments {
		switch container := current.(type) {
		case map[string]any:
			next, ok := container[segment]
			if !ok || next == nil {
				return true
			}
			current = next
		case []any:
			idx, ok := sliceIndex(container, segment)
			if !ok {
				return false
			}
			if container[idx] == nil {
				return true
			}
			current = container[idx]
		default:
			return false
		}
	}
	return true
}

func child(container any, segment string) (any, bool) {
	switch typed := container.(type) {
	case map[string]any:
		value, ok := typed[segment]
		return value, ok
	case []any:
		idx, ok := sliceIndex(typed, segment)
		if !ok {
			return nil, false
		}
		return typed[idx], true
	default:
		return nil, false
	}
}

func sliceIndex(items []any, segment string) (int, bool) {
	idx, err := strconv.Atoi(segment)
	if err != nil || idx < 0 || idx >= len(items) {
		return 0, false
	}
	return idx, true
}
