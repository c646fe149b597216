package ingest

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/domain/listing"
	"github.com/nestvector/nestvector/internal/metrics"
)

// Report summarizes a single ingestion run.
type Report struct {
	Seen     int `json:"seen"`
	Skipped  int `json:"skipped"`
	Inserted int `json:"inserted"`
}

// Service handles deduplicated listing ingestion.
type Service struct {
	repo      Repository
	embed     Embedder
	workers   int
	batchSize int
	logger    *zap.Logger
}

// New creates an ingestion service. workers bounds concurrent embedding
// calls, batchSize bounds a single storage write.
func New(repo Repository, embed Embedder, workers, batchSize int, logger *zap.Logger) *Service {
	if workers < 1 {
		workers = 1
	}
	if batchSize < 1 {
		batchSize = 64
	}
	return &Service{
		repo:      repo,
		embed:     embed,
		workers:   workers,
		batchSize: batchSize,
		logger:    logger,
	}
}

// embedJob carries one new listing through the embedding pool. The index
// preserves input order in the output slice.
type embedJob struct {
	index int
	l     listing.Listing
}

// Ingest deduplicates raw listings against the stored snapshot and within
// the run itself, embeds the new ones, and writes them in batches. Any
// embedding failure aborts the whole run before the first write of the
// failed batch window; listings already written by earlier batches stay.
func (s *Service) Ingest(ctx context.Context, raws []listing.Raw) (Report, error) {
	if s.embed == nil {
		return Report{}, domain.ErrEmbedderUnavailable
	}

	report := Report{Seen: len(raws)}

	existing, err := s.repo.ExistingIDs(ctx)
	if err != nil {
		return report, fmt.Errorf("read existing ids: %w", err)
	}

	// Dedup against the snapshot and within the input itself. First
	// occurrence wins; later duplicates count as skipped.
	seen := make(map[string]struct{}, len(raws))
	var fresh []listing.Listing
	for _, raw := range raws {
		l := listing.New(raw)
		if _, ok := existing[l.ID()]; ok {
			report.Skipped++
			continue
		}
		if _, ok := seen[l.ID()]; ok {
			report.Skipped++
			continue
		}
		seen[l.ID()] = struct{}{}
		fresh = append(fresh, l)
	}
	metrics.IngestListingsTotal.WithLabelValues("skipped").Add(float64(report.Skipped))

	if len(fresh) == 0 {
		return report, nil
	}

	embedded, err := s.embedAll(ctx, fresh)
	if err != nil {
		return report, err
	}

	for start := 0; start < len(embedded); start += s.batchSize {
		end := start + s.batchSize
		if end > len(embedded) {
			end = len(embedded)
		}

		n, err := s.repo.AddBatch(ctx, embedded[start:end])
		if err != nil {
			metrics.IngestListingsTotal.WithLabelValues("inserted").Add(float64(report.Inserted))
			return report, fmt.Errorf("write batch: %w", err)
		}
		report.Inserted += n
	}
	metrics.IngestListingsTotal.WithLabelValues("inserted").Add(float64(report.Inserted))

	// Index build failure does not invalidate stored rows: search falls back
	// to a full scan until a later run rebuilds it.
	if err := s.repo.BuildIndex(ctx); err != nil {
		s.logger.Warn("index build failed, search will use full scan",
			zap.Error(err))
	}

	return report, nil
}

// embedAll runs the embedding pool over fresh listings, preserving input
// order. The first failure cancels the remaining work and aborts the run.
func (s *Service) embedAll(ctx context.Context, fresh []listing.Listing) ([]listing.Listing, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan embedJob)
	out := make([]listing.Listing, len(fresh))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				res, err := s.embed.Embed(ctx, job.l.FullText())
				if err != nil {
					fail(fmt.Errorf("embed listing %s: %w", job.l.ID(), err))
					return
				}
				if len(res.Embedding) != s.repo.Dim() {
					fail(fmt.Errorf("embed listing %s: got %d dimensions, index has %d: %w",
						job.l.ID(), len(res.Embedding), s.repo.Dim(), domain.ErrDimensionMismatch))
					return
				}
				out[job.index] = job.l.WithEmbedding(res.Embedding)
			}
		}()
	}

produce:
	for i, l := range fresh {
		select {
		case jobs <- embedJob{index: i, l: l}:
		case <-ctx.Done():
			break produce
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return out, nil
}
