package statesync

import (
	"errors"
	"fmt"
)

var (
	// ErrNamespaceRequired indicates a binding without a storage key.
	ErrNamespaceRequired = errors.New("statesync: namespace is required")
	// ErrKeysRequired indicates a binding that watches nothing.
	ErrKeysRequired = errors.New("statesync: at least one key is required")
	// ErrInvalidPath indicates a malformed watched path.
	ErrInvalidPath = errors.New("statesync: invalid path")
	// ErrNilHost indicates Attach was called without a host.
	ErrNilHost = errors.New("statesync: host is required")
	// ErrNilSource indicates Attach was called without a configuration source.
	ErrNilSource = errors.New("statesync: configuration source is required")
	// ErrNoBindings indicates a source that resolved to an empty list.
	ErrNoBindings = errors.New("statesync: source resolved no bindings")
	// ErrStorage is matched by every StorageError via errors.Is.
	ErrStorage = errors.New("statesync: storage failure")
	// ErrDetached indicates an operation on an engine that was stopped.
	ErrDetached = errors.New("statesync: engine detached")
)

// StorageError wraps a driver or serializer failure with the binding it
// happened on.
type StorageError struct {
	Op        string
	Namespace string
	Err       error
}

func (e *StorageError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("statesync: %s namespace=%q: %v", e.Op, e.Namespace, e.Err)
}

func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is lets errors.Is(err, ErrStorage) match any StorageError.
func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}

// ConfigError reports a binding configuration rejected at attach time.
type ConfigError struct {
	Index     int
	Namespace string
	Err       error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Namespace == "" {
		return fmt.Sprintf("statesync: binding[%d]: %v", e.Index, e.Err)
	}
	return fmt.Sprintf("statesync: binding[%d] namespace=%q: %v", e.Index, e.Namespace, e.Err)
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrapStorageError(op, namespace string, err error) error {
	if err == nil {
		return nil
	}
	var storageErr *StorageError
	if errors.As(err, &storageErr) {
		return err
	}
	return &StorageError{Op: op, Namespace: namespace, Err: err}
}
