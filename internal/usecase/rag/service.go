// Package rag orchestrates the query flow: embed the question, retrieve
// candidate listings, and optionally generate a prose recommendation.
package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/domain/listing"
)

// Context is the JSON-safe projection of one retrieved listing. It is the
// only shape retrieval results cross the orchestrator boundary in.
type Context struct {
	ID           string  `json:"id"`
	Score        float64 `json:"score"`
	FullText     string  `json:"full_text"`
	Neighborhood string  `json:"neighborhood"`
	Price        string  `json:"price"`
	Bedrooms     int     `json:"bedrooms"`
	Bathrooms    int     `json:"bathrooms"`
}

// Result is the answer to one query. Without a configured generator only
// Query and TopK are set. With one, Answer and Retrieved carry the generated
// recommendation and its supporting contexts; GenerationErr marks a
// generation failure that still produced usable retrieval results.
type Result struct {
	Query         string    `json:"query"`
	TopK          []Context `json:"top_k,omitempty"`
	Answer        string    `json:"answer,omitempty"`
	Retrieved     []Context `json:"retrieved,omitempty"`
	GenerationErr string    `json:"generation_error,omitempty"`
}

// Service handles RAG queries over the listing store.
type Service struct {
	embed    Embedder
	retrieve Retriever
	generate domain.Generator
	logger   *zap.Logger
}

// New creates a query orchestrator. generate may be nil: queries then return
// raw contexts instead of a generated answer.
func New(embed Embedder, retrieve Retriever, generate domain.Generator, logger *zap.Logger) *Service {
	return &Service{
		embed:    embed,
		retrieve: retrieve,
		generate: generate,
		logger:   logger,
	}
}

// Query answers a natural-language question about the stored listings.
// Embedding failure is fatal; retrieval uses the engine's fallback chain;
// generation failure is reported in the result, not as an error, because
// the retrieved contexts are still a usable answer.
func (s *Service) Query(ctx context.Context, userQuery string, k int) (Result, error) {
	if s.embed == nil {
		return Result{}, domain.ErrEmbedderUnavailable
	}

	res := Result{Query: userQuery}

	embRes, err := s.embed.Embed(ctx, userQuery)
	if err != nil {
		return res, fmt.Errorf("vectorize query: %w", err)
	}

	hits, err := s.retrieve.Search(ctx, embRes.Embedding, k)
	if err != nil {
		return res, fmt.Errorf("retrieve candidates: %w", err)
	}

	contexts := toContexts(hits)

	if s.generate == nil {
		res.TopK = contexts
		return res, nil
	}

	answer, err := s.generate.Generate(ctx, systemPrompt, buildUserPrompt(userQuery, contexts))
	if err != nil {
		s.logger.Warn("generation failed, returning retrieved contexts",
			zap.Error(err))
		res.TopK = contexts
		res.GenerationErr = err.Error()
		return res, nil
	}

	res.Answer = answer
	res.Retrieved = contexts
	return res, nil
}

// toContexts projects hits into JSON-safe contexts. Fractional room counts
// truncate toward zero, matching the stored presentation.
func toContexts(hits []listing.Hit) []Context {
	contexts := make([]Context, 0, len(hits))
	for _, h := range hits {
		fields := h.Listing.Fields()
		contexts = append(contexts, Context{
			ID:           h.Listing.ID(),
			Score:        h.Score,
			FullText:     h.Listing.FullText(),
			Neighborhood: fields.Neighborhood,
			Price:        fields.Price,
			Bedrooms:     int(fields.Bedrooms),
			Bathrooms:    int(fields.Bathrooms),
		})
	}
	return contexts
}
