// Package store provides namespaced key-value backends for run state.
//
// Values are opaque byte slices; callers own serialization. Every backend
// writes a value in a single operation so a reader never observes a partial
// value.
package store

import (
	"context"
	"errors"
)

// ErrKeyNotFound is returned by Get when a namespace has no value for a key.
var ErrKeyNotFound = errors.New("key not found")

// KV is a namespaced key-value store.
type KV interface {
	// Put stores value under (namespace, key), replacing any previous value.
	Put(ctx context.Context, namespace, key string, value []byte) error

	// Get returns the value under (namespace, key) or ErrKeyNotFound.
	Get(ctx context.Context, namespace, key string) ([]byte, error)

	// Delete removes (namespace, key). Deleting an absent key is not an error.
	Delete(ctx context.Context, namespace, key string) error

	// Keys lists the keys of a namespace in ascending order.
	Keys(ctx context.Context, namespace string) ([]string, error)

	// Close releases backend resources.
	Close() error
}
