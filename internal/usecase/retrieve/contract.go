package retrieve

import (
	"context"

	"github.com/nestvector/nestvector/internal/domain/listing"
)

// Repository defines the storage contract for retrieval.
type Repository interface {
	NativeSearch(ctx context.Context, vector []float32, k int) ([]listing.Hit, error)
	FullScan(ctx context.Context) ([]listing.Listing, error)
	Dim() int
}
