// Package shard assigns documents to build shards by hashing their ids.
// The same id always lands on the same shard, so a partitioned build sees
// every version of a document in one place.
package shard

import (
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Router maps document ids onto a fixed number of shards.
type Router struct {
	numShards int
}

// NewRouter returns a router over numShards shards.
func NewRouter(numShards int) (*Router, error) {
	if numShards < 1 {
		return nil, fmt.Errorf("shard count must be positive, got %d", numShards)
	}
	return &Router{numShards: numShards}, nil
}

// Route returns the shard that owns key.
func (r *Router) Route(key string) int {
	return int(xxhash.Sum64String(key) % uint64(r.numShards))
}

// NumShards returns the number of shards managed by this router.
func (r *Router) NumShards() int {
	return r.numShards
}

// Split partitions items by the shard of key(item). Relative order within a
// shard follows the input order. Empty shards are returned as nil slices.
func Split[T any](r *Router, items []T, key func(T) string) [][]T {
	parts := make([][]T, r.numShards)
	for _, item := range items {
		id := r.Route(key(item))
		parts[id] = append(parts[id], item)
	}
	return parts
}
