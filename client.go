// Package nestvector is the embedded client for the listing retrieval
// engine: content-addressed ingestion, hybrid vector search, and RAG
// queries over a Redis-compatible store, without running the HTTP server.
package nestvector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nestvector/nestvector/internal/db"
	dbredis "github.com/nestvector/nestvector/internal/db/redis"
	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/domain/listing"
	"github.com/nestvector/nestvector/internal/metrics"
	"github.com/nestvector/nestvector/internal/repository/embcache"
	listingrepo "github.com/nestvector/nestvector/internal/repository/listing"
	ingestuc "github.com/nestvector/nestvector/internal/usecase/ingest"
	raguc "github.com/nestvector/nestvector/internal/usecase/rag"
	retrieveuc "github.com/nestvector/nestvector/internal/usecase/retrieve"
)

const (
	defaultReadinessTimeout = 10 * time.Second
	defaultDimensions       = 1536
)

// Embedder vectorizes text. Implementations wrap an embedding provider.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// EmbeddingResult carries a vector and the provider token usage.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Generator produces a prose answer from a system and user prompt.
type Generator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Listing is one raw input record. Missing fields stay zero-valued.
type Listing = listing.Raw

// IngestReport summarizes an ingestion run.
type IngestReport = ingestuc.Report

// QueryResult is the answer to one RAG query.
type QueryResult = raguc.Result

// RetrievedListing is one retrieved context.
type RetrievedListing = raguc.Context

// Client is the nestvector embedded entry point.
type Client struct {
	store   db.Store
	repo    *listingrepo.Repo
	ingest  *ingestuc.Service
	queries *raguc.Service
}

// New creates a Client, connects to the database, and opens the listing
// table (creating it when absent).
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		dimensions: defaultDimensions,
		logger:     zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("nestvector: database address required (use WithRedis)")
	}

	store, err := dbredis.NewStore(dbredis.Config{
		Addrs:    cfg.addrs,
		Username: cfg.username,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("nestvector: create store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("nestvector: database not ready: %w", err)
	}

	metrics.Register()

	c, err := wireClient(ctx, store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig) (*Client, error) {
	if cfg.keyPrefix == "" {
		cfg.keyPrefix = "nestvector:"
	}
	if cfg.table == "" {
		cfg.table = "listings"
	}

	repo := listingrepo.New(store, cfg.keyPrefix, cfg.table, cfg.dimensions)
	if cfg.hnswM > 0 || cfg.hnswEF > 0 {
		repo = repo.WithHNSW(listingrepo.HNSWConfig{M: cfg.hnswM, EFConstruct: cfg.hnswEF})
	}

	if err := repo.CreateOrOpen(ctx, cfg.force); err != nil {
		return nil, fmt.Errorf("nestvector: open table: %w", err)
	}

	var domEmb domain.Embedder
	if cfg.embedder != nil {
		domEmb = &embedderAdapter{inner: cfg.embedder}
		if cfg.cacheEmbeds {
			domEmb = embcache.New(domEmb, store, cfg.keyPrefix, "", cfg.dimensions,
				cfg.cacheTTL, metrics.EmbeddingCacheTotal, cfg.logger)
		}
	}

	var domGen domain.Generator
	if cfg.generator != nil {
		domGen = cfg.generator
	}

	ingestSvc := ingestuc.New(repo, domEmb, cfg.workers, cfg.batchSize, cfg.logger)
	retrieveSvc := retrieveuc.New(repo, cfg.logger)
	ragSvc := raguc.New(domEmb, retrieveSvc, domGen, cfg.logger)

	return &Client{
		store:   store,
		repo:    repo,
		ingest:  ingestSvc,
		queries: ragSvc,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Ingest deduplicates and stores raw listings, embedding the new ones.
func (c *Client) Ingest(ctx context.Context, listings []Listing) (IngestReport, error) {
	return c.ingest.Ingest(ctx, listings)
}

// Query answers a natural-language question over the stored listings.
// k <= 0 uses a default of 5.
func (c *Client) Query(ctx context.Context, query string, k int) (QueryResult, error) {
	if k <= 0 {
		k = 5
	}
	return c.queries.Query(ctx, query, k)
}

// embedderAdapter wraps the public Embedder to satisfy internal
// domain.Embedder.
type embedderAdapter struct {
	inner Embedder
}

func (a *embedderAdapter) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	r, err := a.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed: %w", err)
	}
	return domain.EmbeddingResult{
		Embedding:    r.Embedding,
		PromptTokens: r.PromptTokens,
		TotalTokens:  r.TotalTokens,
	}, nil
}
