// Package storage provides the local durable key-value cache used by the
// cart engine: the browser-localStorage equivalent that holds the last-known
// guest cart and the staging slot used while bridging a guest session into an
// authenticated one.
package storage

import "errors"

var ErrKeyNotFound = errors.New("storage: key not found")

// Store is a small durable key-value surface. Implementations must be safe
// for concurrent use.
type Store interface {
	Put(key string, value []byte) error
	// Get returns ErrKeyNotFound when the key has never been written or has
	// been deleted.
	Get(key string) ([]byte, error)
	Delete(key string) error
	Close() error
}
