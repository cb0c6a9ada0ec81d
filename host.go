package statesync

// Host is the reactive object a coordinator attaches to. State returns the
// live state map; restore mutates it in place and capture reads it in place.
// Watch registers fn to run after changes to any of keys (top-level state
// keys), coalesced at the host's discretion, and returns a function that
// unregisters it. Errors returned by fn belong to whatever flushed the change.
// Watch must not invoke fn before returning. Hosts that write state
// concurrently with watcher callbacks must implement LockedHost.
//
// The coordinator indexes hosts in a map, so implementations must be
// comparable; pointer receivers are the norm.
type Host interface {
	State() map[string]any
	Watch(keys []string, fn func() error) (stop func())
}

// LockedHost is implemented by hosts whose state may be mutated from another
// goroutine while watchers run. Engines then restore through Update and
// capture through Read instead of touching State directly. fn must not call
// back into the host.
type LockedHost interface {
	Host
	Read(fn func(state map[string]any))
	Update(fn func(state map[string]any))
}

func readState(host Host, fn func(map[string]any)) {
	if locked, ok := host.(LockedHost); ok {
		locked.Read(fn)
		return
	}
	fn(host.State())
}

func updateState(host Host, fn func(map[string]any)) {
	if locked, ok := host.(LockedHost); ok {
		locked.Update(fn)
		return
	}
	fn(host.State())
}
