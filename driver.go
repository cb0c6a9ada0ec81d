package statesync

import "context"

// Driver is the key-value contract a binding reads from and writes to. Get
// reports ok=false when nothing is stored under key. Implementations are
// expected to be fast and in-process; errors are surfaced to the caller
// unchanged.
type Driver interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// driverName returns a short label for logs and activity metadata.
func driverName(d Driver) string {
	if named, ok := d.(interface{ Name() string }); ok {
		return named.Name()
	}
	return "custom"
}
