package nestvector

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/nestvector/nestvector/internal/db"
)

// fakeStore is an in-memory db.Store for wiring tests.
type fakeStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	kv     map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		hashes: make(map[string]map[string]string),
		kv:     make(map[string][]byte),
	}
}

func (f *fakeStore) Ping(_ context.Context) error { return nil }

func (f *fakeStore) WaitForReady(_ context.Context, _ time.Duration) error { return nil }

func (f *fakeStore) Close() {}

func (f *fakeStore) HSet(_ context.Context, key string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[key] = fields
	return nil
}

func (f *fakeStore) HSetMulti(_ context.Context, items []db.HashSetItem) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, it := range items {
		f.hashes[it.Key] = it.Fields
	}
	return nil
}

func (f *fakeStore) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hashes[key], nil
}

func (f *fakeStore) HGetAllMulti(_ context.Context, keys []string) ([]map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]string, len(keys))
	for i, k := range keys {
		out[i] = f.hashes[k]
	}
	return out, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.hashes, k)
		delete(f.kv, k)
	}
	return nil
}

func (f *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.hashes[key]
	return ok, nil
}

func (f *fakeStore) Scan(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var keys []string
	for k := range f.hashes {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (f *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return v, nil
}

func (f *fakeStore) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kv[key] = value
	return nil
}

func (f *fakeStore) SetWithTTL(ctx context.Context, key string, value []byte, _ time.Duration) error {
	return f.Set(ctx, key, value)
}

func (f *fakeStore) CreateIndex(_ context.Context, _ *db.IndexDefinition) error { return nil }

func (f *fakeStore) DropIndex(_ context.Context, _ string) error { return db.ErrIndexNotFound }

func (f *fakeStore) IndexExists(_ context.Context, _ string) (bool, error) { return false, nil }

func (f *fakeStore) SearchKNN(_ context.Context, _ *db.KNNQuery) (*db.SearchResult, error) {
	// No FT engine here: retrieval exercises the brute-force path.
	return nil, db.ErrIndexNotFound
}

var _ db.Store = (*fakeStore)(nil)

// fakeEmbedder derives a deterministic 4-dim vector from text length.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	n := float32(len(text) % 7)
	return EmbeddingResult{
		Embedding:    []float32{1, n, n * 0.5, 0.25},
		PromptTokens: len(text) / 4,
		TotalTokens:  len(text) / 4,
	}, nil
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	cfg := &clientConfig{
		dimensions: 4,
		embedder:   fakeEmbedder{},
		workers:    2,
		batchSize:  8,
		logger:     zap.NewNop(),
	}

	c, err := wireClient(context.Background(), newFakeStore(), cfg)
	if err != nil {
		t.Fatalf("wireClient: %v", err)
	}
	return c
}

func TestClient_IngestAndQuery(t *testing.T) {
	c := newTestClient(t)
	defer c.Close()

	listings := []Listing{
		{Neighborhood: "Lakeside", Price: "450000", Bedrooms: 3, Bathrooms: 2, Description: "Sunny home near the lake."},
		{Neighborhood: "Downtown", Price: "620000", Bedrooms: 2, Bathrooms: 1, Description: "Compact city apartment."},
	}

	report, err := c.Ingest(context.Background(), listings)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if report.Inserted != 2 {
		t.Fatalf("Inserted = %d, expected 2", report.Inserted)
	}

	// Second run skips everything.
	report, err = c.Ingest(context.Background(), listings)
	if err != nil {
		t.Fatalf("re-Ingest: %v", err)
	}
	if report.Inserted != 0 || report.Skipped != 2 {
		t.Errorf("re-ingest report = %+v", report)
	}

	res, err := c.Query(context.Background(), "a sunny place near water", 1)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(res.TopK) != 1 {
		t.Fatalf("expected 1 context, got %d", len(res.TopK))
	}
	if res.TopK[0].FullText == "" {
		t.Error("context missing full_text")
	}
}

func TestClient_QueryDefaultK(t *testing.T) {
	c := newTestClient(t)
	defer c.Close()

	res, err := c.Query(context.Background(), "anything", 0)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if res.Query != "anything" {
		t.Errorf("Query field = %q", res.Query)
	}
}

func TestNew_RequiresAddress(t *testing.T) {
	_, err := New()
	if err == nil {
		t.Fatal("expected error without a database address")
	}
}
