package domain

import "errors"

var (
	// ErrEmbedderUnavailable signals that no embedding provider is configured or reachable.
	ErrEmbedderUnavailable = errors.New("embedder unavailable")
	// ErrDimensionMismatch signals an embedding vector of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrIndexUnavailable signals that the store has no usable vector index.
	// This is an expected condition: callers fall back to brute-force search.
	ErrIndexUnavailable = errors.New("vector index unavailable")
	// ErrGenerationProvider signals a generation provider failure.
	ErrGenerationProvider = errors.New("generation provider error")
	// ErrStoreWrite signals a failed batch write; nothing from the batch is committed.
	ErrStoreWrite = errors.New("store write failed")
	// ErrSchemaMismatch signals that an existing table is incompatible with the
	// configured schema (e.g. a different embedding dimension). Fatal at startup:
	// the caller must drop and recreate, never silently adapt.
	ErrSchemaMismatch = errors.New("table schema mismatch")
)
