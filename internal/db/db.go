// Package db defines the storage engine facade used by the repositories.
// Consumers depend on the narrow sub-interfaces, not on Store itself.
package db

import (
	"context"
	"time"
)

// Store is the storage engine facade combining all sub-interfaces.
type Store interface {
	Pinger
	HashStore
	KVStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks storage connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashSetItem holds a single key+fields pair for a batched HSET.
type HashSetItem struct {
	Key    string
	Fields map[string]string
}

// HashStore provides hash-based row operations.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	// HSetMulti writes all hashes inside one MULTI/EXEC transaction:
	// either every item is committed or none is.
	HSetMulti(ctx context.Context, items []HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// KVStore provides simple key-value operations (embedding cache).
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IndexManager provides FT index lifecycle operations.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher provides KNN search over FT indexes.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
}
