package store

import (
	"errors"
)

var (
	ErrKeyNotFound = errors.New("key not found")
)

// Store is the durable key-value adapter the cache engine persists through.
// Implementations must be safe for concurrent use; the engine issues small
// point reads and writes (snapshot, metadata, pending queue), never scans.
type Store interface {
	// Get returns the value for key, or ErrKeyNotFound.
	Get(key []byte) ([]byte, error)

	// Set writes the value for key, overwriting any previous value.
	Set(key, value []byte) error

	// Delete removes the key. Deleting a missing key is not an error.
	Delete(key []byte) error

	// Close releases the underlying storage.
	Close() error
}
