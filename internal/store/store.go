// Package store persists small documents, such as saved connection
// profiles, in an embedded Olric DMap or in process memory.
package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("key not found")

var errClosed = errors.New("store is closed")

// Store is a flat key/value document store.
type Store interface {
	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key string, value []byte) error

	// Get returns the value for key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Keys returns every stored key in no particular order.
	Keys(ctx context.Context) ([]string, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Stats returns current statistics about the store.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the store. For the embedded Olric store this also
	// leaves the cluster.
	Close(ctx context.Context) error
}

// Stats describes the state of a store.
type Stats struct {
	// Backend names the implementation ("olric" or "memory").
	Backend string

	// ClusterMembers is the number of active members; 1 for memory.
	ClusterMembers int

	// PartitionCount is the number of partitions in the cluster.
	PartitionCount int

	// ReplicationFactor is the number of copies of each partition.
	ReplicationFactor int

	// TotalKeys is the number of keys stored.
	TotalKeys int64
}
