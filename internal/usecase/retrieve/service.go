// Package retrieve runs top-k similarity search with an exact brute-force
// fallback when the native index cannot serve the query.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/domain/listing"
	"github.com/nestvector/nestvector/internal/metrics"
)

// Service handles top-k retrieval over the listing store.
type Service struct {
	repo   Repository
	logger *zap.Logger
}

// New creates a retrieval service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

// Search returns the top-k listings most similar to the query vector.
// The native index is tried first and its results are returned verbatim.
// A missing index, an empty native result, or a native failure all degrade
// to an exact scan; only a store read failure during the scan is an error.
// A query vector whose length differs from the table dimension is rejected
// with domain.ErrDimensionMismatch before any store access.
func (s *Service) Search(ctx context.Context, vector []float32, k int) ([]listing.Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	if d := s.repo.Dim(); len(vector) != d {
		return nil, fmt.Errorf(
			"query vector length %d, table dimension %d: %w",
			len(vector), d, domain.ErrDimensionMismatch,
		)
	}

	hits, err := s.repo.NativeSearch(ctx, vector, k)
	switch {
	case err == nil && len(hits) > 0:
		return hits, nil
	case err == nil:
		metrics.SearchFallbackTotal.WithLabelValues("empty_result").Inc()
	case errors.Is(err, domain.ErrIndexUnavailable):
		metrics.SearchFallbackTotal.WithLabelValues("no_index").Inc()
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		// Cancellation fails the in-flight query, it is not an index problem.
		return nil, fmt.Errorf("native search: %w", err)
	default:
		metrics.SearchFallbackTotal.WithLabelValues("native_error").Inc()
		s.logger.Warn("native search failed, falling back to full scan",
			zap.Error(err))
	}

	return s.bruteForce(ctx, vector, k)
}

// bruteForce scores every stored listing with exact cosine similarity.
// The scan order is lexicographic by id, so equal scores keep a stable,
// reproducible ranking.
func (s *Service) bruteForce(ctx context.Context, vector []float32, k int) ([]listing.Hit, error) {
	rows, err := s.repo.FullScan(ctx)
	if err != nil {
		return nil, fmt.Errorf("full scan: %w", err)
	}

	hits := make([]listing.Hit, 0, len(rows))
	for _, l := range rows {
		if len(l.Embedding()) == 0 {
			continue
		}
		hits = append(hits, listing.Hit{
			Listing: l,
			Score:   cosineSimilarity(vector, l.Embedding()),
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}
