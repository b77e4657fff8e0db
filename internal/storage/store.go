package storage

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get when the key has never been set or was deleted.
var ErrNotFound = errors.New("storage: key not found")

// Store is the durable key/value storage used for tokens and the cached API entry.
// Values are opaque strings.
type Store interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error

	// Lifecycle
	Close() error
}

// Ensure implementations satisfy Store
var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
	_ Store = (*KeyringStore)(nil)
)

// Backend names accepted by Open.
const (
	BackendSQLite  = "sqlite"
	BackendKeyring = "keyring"
	BackendMemory  = "memory"
)

// Open builds the store for the configured backend. path is only used by sqlite.
func Open(backend, path string) (Store, error) {
	switch backend {
	case BackendSQLite, "":
		return NewSQLiteStore(path)
	case BackendKeyring:
		return NewKeyringStore(DefaultKeyringService), nil
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", backend)
	}
}
