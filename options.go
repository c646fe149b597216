package nestvector

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	addrs       []string
	username    string
	password    string
	keyPrefix   string
	table       string
	dimensions  int
	hnswM       int
	hnswEF      int
	workers     int
	batchSize   int
	force       bool
	embedder    Embedder
	generator   Generator
	cacheEmbeds bool
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// WithRedis sets the Redis (or Valkey) addresses to connect to.
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) {
		c.addrs = addrs
	}
}

// WithAuth sets database credentials.
func WithAuth(username, password string) Option {
	return func(c *clientConfig) {
		c.username = username
		c.password = password
	}
}

// WithTable sets the listing table name. Default is "listings".
func WithTable(table string) Option {
	return func(c *clientConfig) {
		c.table = table
	}
}

// WithKeyPrefix sets the key namespace. Default is "nestvector:".
func WithKeyPrefix(prefix string) Option {
	return func(c *clientConfig) {
		c.keyPrefix = prefix
	}
}

// WithDimensions sets the embedding dimension the table is created with.
func WithDimensions(d int) Option {
	return func(c *clientConfig) {
		c.dimensions = d
	}
}

// WithHNSW tunes HNSW index parameters.
func WithHNSW(m, efConstruct int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEF = efConstruct
	}
}

// WithIngestTuning bounds embedding concurrency and storage batch size.
func WithIngestTuning(workers, batchSize int) Option {
	return func(c *clientConfig) {
		c.workers = workers
		c.batchSize = batchSize
	}
}

// WithForceRecreate drops and recreates the table on open.
func WithForceRecreate() Option {
	return func(c *clientConfig) {
		c.force = true
	}
}

// WithEmbedder sets the embedding provider. Required for ingestion and
// queries.
func WithEmbedder(e Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithEmbeddingCache caches embeddings in the store, keyed by the table
// dimension and a hash of the input text. ttl <= 0 means cached embeddings
// never expire.
func WithEmbeddingCache(ttl time.Duration) Option {
	return func(c *clientConfig) {
		c.cacheEmbeds = true
		c.cacheTTL = ttl
	}
}

// WithGenerator sets the answer generator. Optional: without one, queries
// return raw retrieved contexts.
func WithGenerator(g Generator) Option {
	return func(c *clientConfig) {
		c.generator = g
	}
}

// WithLogger sets the logger. Default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}
