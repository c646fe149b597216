// Package metrics holds Prometheus collectors and the HTTP middleware.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the embedding and retrieval paths.
var (
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestvector",
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "model", "status"},
	)

	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "nestvector",
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider", "model"},
	)

	EmbeddingTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestvector",
			Name:      "embedding_tokens_total",
			Help:      "Total embedding tokens consumed",
		},
		[]string{"provider", "model", "type"},
	)

	EmbeddingCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestvector",
			Name:      "embedding_cache_total",
			Help:      "Embedding cache hits and misses",
		},
		[]string{"result"}, // "hit" / "miss"
	)

	GenerationRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestvector",
			Name:      "generation_requests_total",
			Help:      "Total number of answer generation requests",
		},
		[]string{"provider", "model", "status"},
	)

	SearchFallbackTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestvector",
			Name:      "search_fallback_total",
			Help:      "Brute-force fallback activations by reason",
		},
		[]string{"reason"}, // "no_index" / "empty_result" / "native_error"
	)

	IngestListingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "nestvector",
			Name:      "ingest_listings_total",
			Help:      "Listings seen by the ingestion pipeline by outcome",
		},
		[]string{"outcome"}, // "inserted" / "skipped"
	)
)

var registered bool

// Register registers all domain metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(EmbeddingRequestsTotal)
	prometheus.MustRegister(EmbeddingRequestDuration)
	prometheus.MustRegister(EmbeddingTokensTotal)
	prometheus.MustRegister(EmbeddingCacheTotal)
	prometheus.MustRegister(GenerationRequestsTotal)
	prometheus.MustRegister(SearchFallbackTotal)
	prometheus.MustRegister(IngestListingsTotal)
	registered = true
}
