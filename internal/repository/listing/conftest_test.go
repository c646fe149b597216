package listing

import (
	"context"
	"testing"

	"github.com/nestvector/nestvector/internal/db"
	domlisting "github.com/nestvector/nestvector/internal/domain/listing"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	hsetFn        func(ctx context.Context, key string, fields map[string]string) error
	hsetMultiFn   func(ctx context.Context, items []db.HashSetItem) error
	hgetAllFn     func(ctx context.Context, key string) (map[string]string, error)
	hgetAllMultiF func(ctx context.Context, keys []string) ([]map[string]string, error)
	delFn         func(ctx context.Context, keys ...string) error
	existsFn      func(ctx context.Context, key string) (bool, error)
	scanFn        func(ctx context.Context, pattern string) ([]string, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	dropIndexFn   func(ctx context.Context, name string) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

func (m *mockStore) HSet(ctx context.Context, key string, fields map[string]string) error {
	if m.hsetFn != nil {
		return m.hsetFn(ctx, key, fields)
	}
	return nil
}

func (m *mockStore) HSetMulti(ctx context.Context, items []db.HashSetItem) error {
	if m.hsetMultiFn != nil {
		return m.hsetMultiFn(ctx, items)
	}
	return nil
}

func (m *mockStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if m.hgetAllFn != nil {
		return m.hgetAllFn(ctx, key)
	}
	return map[string]string{}, nil
}

func (m *mockStore) HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error) {
	if m.hgetAllMultiF != nil {
		return m.hgetAllMultiF(ctx, keys)
	}
	return nil, nil
}

func (m *mockStore) Del(ctx context.Context, keys ...string) error {
	if m.delFn != nil {
		return m.delFn(ctx, keys...)
	}
	return nil
}

func (m *mockStore) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

func (m *mockStore) Scan(ctx context.Context, pattern string) ([]string, error) {
	if m.scanFn != nil {
		return m.scanFn(ctx, pattern)
	}
	return nil, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) DropIndex(ctx context.Context, name string) error {
	if m.dropIndexFn != nil {
		return m.dropIndexFn(ctx, name)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, "nestvector:", "listings", 4)
	return repo, ms
}

func testListing(t *testing.T, neighborhood string, vec []float32) domlisting.Listing {
	t.Helper()
	l := domlisting.New(domlisting.Raw{
		Neighborhood: neighborhood,
		Price:        "$500,000",
		Bedrooms:     3,
		Bathrooms:    2,
		HouseSize:    "1,800 sqft",
		Description:  "A cozy home in " + neighborhood + ".",
	})
	return l.WithEmbedding(vec)
}
