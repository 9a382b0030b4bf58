// Package kvstore persists whole JSON values under string keys.
//
// Update is the only read-modify-write primitive: the callback sees the
// current value and its result replaces it atomically with respect to other
// callers of the same Store.
package kvstore

import (
	"context"
	"fmt"
	"path/filepath"
)

// UpdateFunc receives the current value (ok=false when the key is absent)
// and returns the replacement.
type UpdateFunc func(old []byte, ok bool) ([]byte, error)

// Store is the persisted key-value collaborator.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Close() error
}

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open creates the Store for the named backend rooted at dataDir.
func Open(backend, dataDir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(filepath.Join(dataDir, "store.json"))
	case BackendSQLite:
		return OpenSQLite(filepath.Join(dataDir, "store.db"))
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("kvstore: unknown backend %q", backend)
	}
}
