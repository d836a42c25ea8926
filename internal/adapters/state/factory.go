package state

import (
	"fmt"

	"github.com/labwire/workcell/internal/core"
)

// NewRunStore creates a RunStore for the given backend name.
// Supported backends: memory, json, sqlite.
func NewRunStore(backend, path string) (core.RunStore, error) {
	switch backend {
	case "memory":
		return NewMemoryStore(), nil
	case "json":
		return NewJSONStore(path)
	case "sqlite":
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown state backend %q", backend)
	}
}

// Closeable is an optional interface for stores that need cleanup.
type Closeable interface {
	Close() error
}

// CloseRunStore safely closes a RunStore if it implements Closeable.
func CloseRunStore(s core.RunStore) error {
	if closeable, ok := s.(Closeable); ok {
		return closeable.Close()
	}
	return nil
}
