// Package listing implements the listing store: durable, deduplicated rows
// plus delegated native vector search over an FT index.
package listing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nestvector/nestvector/internal/db"
	"github.com/nestvector/nestvector/internal/domain"
	domlisting "github.com/nestvector/nestvector/internal/domain/listing"
)

const schemaVersion = 1

// store is the consumer interface for the listing repository (ISP).
//
//nolint:interfacebloat // the listing store owns rows, meta, and index lifecycle
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, keys ...string) error
	Exists(ctx context.Context, key string) (bool, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	DropIndex(ctx context.Context, name string) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig holds HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo is the listing store over a key-value engine with FT search.
type Repo struct {
	store     store
	keyPrefix string
	table     string
	dim       int
	algo      db.VectorAlgorithm
	metric    db.DistanceMetric
	hnsw      HNSWConfig
}

// New creates a listing repository for one table with a fixed embedding dimension.
func New(s store, keyPrefix, table string, dim int) *Repo {
	if keyPrefix == "" {
		keyPrefix = "nestvector:"
	}
	return &Repo{
		store:     s,
		keyPrefix: keyPrefix,
		table:     table,
		dim:       dim,
		algo:      db.VectorHNSW,
		metric:    db.DistanceCosine,
		hnsw:      HNSWConfig{M: 32, EFConstruct: 400},
	}
}

// WithHNSW configures HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	if cfg.M > 0 {
		r.hnsw.M = cfg.M
	}
	if cfg.EFConstruct > 0 {
		r.hnsw.EFConstruct = cfg.EFConstruct
	}
	return r
}

// WithIndexParams overrides the vector algorithm and distance metric used
// when building the index. Defaults are HNSW over cosine distance.
func (r *Repo) WithIndexParams(algo db.VectorAlgorithm, metric db.DistanceMetric) *Repo {
	if algo != "" {
		r.algo = algo
	}
	if metric != "" {
		r.metric = metric
	}
	return r
}

// Dim returns the table's embedding dimension.
func (r *Repo) Dim() int { return r.dim }

// CreateOrOpen opens the table, creating it when absent. With force it drops
// any existing table (rows, meta, index) first. Opening an existing table
// whose recorded dimension or schema version differs from the configured one
// fails with domain.ErrSchemaMismatch: the caller decides drop-and-recreate.
func (r *Repo) CreateOrOpen(ctx context.Context, force bool) error {
	if force {
		if err := r.drop(ctx); err != nil {
			return fmt.Errorf("drop table %s: %w", r.table, err)
		}
	}

	ok, err := r.store.Exists(ctx, r.metaKey())
	if err != nil {
		return fmt.Errorf("probe table meta %s: %w", r.table, err)
	}
	if !ok {
		return r.create(ctx)
	}

	meta, err := r.store.HGetAll(ctx, r.metaKey())
	if err != nil {
		return fmt.Errorf("read table meta %s: %w", r.table, err)
	}
	if len(meta) == 0 { // table dropped between probe and read
		return r.create(ctx)
	}

	return r.validateMeta(meta)
}

func (r *Repo) create(ctx context.Context) error {
	meta := map[string]string{
		"dim":            strconv.Itoa(r.dim),
		"schema_version": strconv.Itoa(schemaVersion),
		"created_at":     strconv.FormatInt(time.Now().UnixMilli(), 10),
	}
	if err := r.store.HSet(ctx, r.metaKey(), meta); err != nil {
		return fmt.Errorf("write table meta %s: %w", r.table, err)
	}
	return nil
}

func (r *Repo) validateMeta(meta map[string]string) error {
	storedDim, err := strconv.Atoi(meta["dim"])
	if err != nil {
		return fmt.Errorf("table %s has corrupt meta: %w", r.table, domain.ErrSchemaMismatch)
	}
	if storedDim != r.dim {
		return fmt.Errorf(
			"table %s stores %d-dimensional vectors, configured for %d: %w",
			r.table, storedDim, r.dim, domain.ErrSchemaMismatch,
		)
	}
	if v := meta["schema_version"]; v != strconv.Itoa(schemaVersion) {
		return fmt.Errorf("table %s has schema version %s, want %d: %w",
			r.table, v, schemaVersion, domain.ErrSchemaMismatch)
	}
	return nil
}

// drop removes the index, all rows, and the meta hash. Missing pieces are fine.
func (r *Repo) drop(ctx context.Context) error {
	if err := r.store.DropIndex(ctx, r.indexName()); err != nil && !errors.Is(err, db.ErrIndexNotFound) {
		return fmt.Errorf("drop index: %w", err)
	}

	keys, err := r.store.Scan(ctx, r.rowPattern())
	if err != nil {
		return fmt.Errorf("scan rows: %w", err)
	}
	if err := r.store.Del(ctx, keys...); err != nil {
		return fmt.Errorf("delete rows: %w", err)
	}

	if err := r.store.Del(ctx, r.metaKey()); err != nil {
		return fmt.Errorf("delete meta: %w", err)
	}
	return nil
}

// ExistingIDs returns the set of all stored listing ids.
func (r *Repo) ExistingIDs(ctx context.Context) (map[string]struct{}, error) {
	keys, err := r.store.Scan(ctx, r.rowPattern())
	if err != nil {
		return nil, fmt.Errorf("scan listings %s: %w", r.table, err)
	}

	ids := make(map[string]struct{}, len(keys))
	prefix := r.rowPrefix()
	for _, key := range keys {
		ids[strings.TrimPrefix(key, prefix)] = struct{}{}
	}
	return ids, nil
}

// AddBatch appends listings as one all-or-nothing write. Every embedding is
// validated against the table dimension before anything is sent: a mismatch
// rejects the whole batch and nothing is committed. Writing an id that
// already exists overwrites the identical row (idempotent), never duplicates.
func (r *Repo) AddBatch(ctx context.Context, listings []domlisting.Listing) (int, error) {
	if len(listings) == 0 {
		return 0, nil
	}

	items := make([]db.HashSetItem, len(listings))
	for i := range listings {
		l := &listings[i]
		if len(l.Embedding()) != r.dim {
			return 0, fmt.Errorf(
				"listing %s: vector length %d, table dimension %d: %w",
				l.ID(), len(l.Embedding()), r.dim, domain.ErrDimensionMismatch,
			)
		}
		items[i] = db.HashSetItem{
			Key:    r.rowKey(l.ID()),
			Fields: buildHashFields(l),
		}
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return 0, fmt.Errorf("add batch of %d: %w: %w", len(items), domain.ErrStoreWrite, err)
	}
	return len(items), nil
}

// NativeSearch delegates top-k similarity search to the FT index.
// A missing index surfaces as domain.ErrIndexUnavailable, the expected
// signal for brute-force fallback, not a failure.
func (r *Repo) NativeSearch(ctx context.Context, vector []float32, k int) ([]domlisting.Hit, error) {
	res, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vector,
		K:            k,
		ReturnFields: rowFieldNames(),
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, domain.ErrIndexUnavailable
		}
		return nil, fmt.Errorf("native search %s: %w", r.table, err)
	}

	if res == nil || res.Total == 0 {
		return nil, nil
	}

	prefix := r.rowPrefix()
	hits := make([]domlisting.Hit, 0, len(res.Entries))
	for _, entry := range res.Entries {
		id := strings.TrimPrefix(entry.Key, prefix)
		hits = append(hits, domlisting.Hit{
			Listing: parseHashFields(id, entry.Fields),
			Score:   entry.Score,
		})
	}
	return hits, nil
}

// FullScan materializes every row, in lexicographic id order so downstream
// ranking has a deterministic scan order to break ties with.
func (r *Repo) FullScan(ctx context.Context) ([]domlisting.Listing, error) {
	keys, err := r.store.Scan(ctx, r.rowPattern())
	if err != nil {
		return nil, fmt.Errorf("scan listings %s: %w", r.table, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	sort.Strings(keys)

	rows, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("fetch listings %s: %w", r.table, err)
	}

	prefix := r.rowPrefix()
	listings := make([]domlisting.Listing, 0, len(rows))
	for i, fields := range rows {
		if len(fields) == 0 {
			continue // row deleted between scan and fetch
		}
		id := strings.TrimPrefix(keys[i], prefix)
		listings = append(listings, parseHashFields(id, fields))
	}
	return listings, nil
}

// BuildIndex creates the FT vector index over the embedding field.
// An already existing index is success; other failures are the caller's to
// log. Index creation is best-effort and must never abort an ingestion run.
func (r *Repo) BuildIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("probe index %s: %w", r.indexName(), err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:     r.indexName(),
		Prefixes: []string{r.rowPrefix()},
		Fields: []db.IndexField{
			{Name: "neighborhood", Type: db.IndexFieldTag},
			{Name: "bedrooms", Type: db.IndexFieldNumeric},
			{Name: "bathrooms", Type: db.IndexFieldNumeric},
			{
				Name:              "embedding",
				Type:              db.IndexFieldVector,
				VectorAlgo:        r.algo,
				VectorDim:         r.dim,
				VectorDistance:    r.metric,
				VectorM:           r.hnsw.M,
				VectorEFConstruct: r.hnsw.EFConstruct,
			},
		},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil // lost a concurrent creation race
		}
		return fmt.Errorf("build index %s: %w", r.indexName(), err)
	}
	return nil
}

func (r *Repo) rowPrefix() string {
	return r.keyPrefix + r.table + ":"
}

func (r *Repo) rowPattern() string {
	return r.rowPrefix() + "*"
}

func (r *Repo) rowKey(id string) string {
	return r.rowPrefix() + id
}

func (r *Repo) metaKey() string {
	return r.keyPrefix + "meta:" + r.table
}

func (r *Repo) indexName() string {
	return r.keyPrefix + r.table + ":idx"
}
