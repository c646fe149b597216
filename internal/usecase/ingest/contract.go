package ingest

import (
	"context"

	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/domain/listing"
)

// Repository defines the storage contract for ingestion.
type Repository interface {
	ExistingIDs(ctx context.Context) (map[string]struct{}, error)
	AddBatch(ctx context.Context, listings []listing.Listing) (int, error)
	BuildIndex(ctx context.Context) error
	Dim() int
}

// Embedder vectorizes listing text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
