package rag

import (
	"context"

	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/domain/listing"
)

// Retriever runs top-k similarity search over the listing store.
type Retriever interface {
	Search(ctx context.Context, vector []float32, k int) ([]listing.Hit, error)
}

// Embedder vectorizes the user query.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
