package chi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/domain/listing"
	"github.com/nestvector/nestvector/internal/metrics"
	healthuc "github.com/nestvector/nestvector/internal/usecase/health"
	ingestuc "github.com/nestvector/nestvector/internal/usecase/ingest"
	raguc "github.com/nestvector/nestvector/internal/usecase/rag"
	retrieveuc "github.com/nestvector/nestvector/internal/usecase/retrieve"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// --- Mocks ---

type mockIngestRepo struct {
	existing map[string]struct{}
	added    int
}

func (m *mockIngestRepo) ExistingIDs(_ context.Context) (map[string]struct{}, error) {
	if m.existing == nil {
		return map[string]struct{}{}, nil
	}
	return m.existing, nil
}

func (m *mockIngestRepo) AddBatch(_ context.Context, listings []listing.Listing) (int, error) {
	m.added += len(listings)
	return len(listings), nil
}

func (m *mockIngestRepo) BuildIndex(_ context.Context) error { return nil }

func (m *mockIngestRepo) Dim() int { return 2 }

type mockRetrieveRepo struct {
	rows []listing.Listing
}

func (m *mockRetrieveRepo) NativeSearch(_ context.Context, _ []float32, _ int) ([]listing.Hit, error) {
	return nil, domain.ErrIndexUnavailable
}

func (m *mockRetrieveRepo) FullScan(_ context.Context) ([]listing.Listing, error) {
	return m.rows, nil
}

func (m *mockRetrieveRepo) Dim() int { return 2 }

type mockEmbedder struct {
	err error
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(_ context.Context) error { return m.err }

func storedListing(neighborhood string) listing.Listing {
	raw := listing.Raw{Neighborhood: neighborhood, Price: "450000", Bedrooms: 3, Bathrooms: 2}
	l := listing.New(raw)
	return l.WithEmbedding([]float32{1, 0})
}

func newTestServer(t *testing.T, embedErr error, storeErr error, rows []listing.Listing) (*Server, *mockIngestRepo) {
	t.Helper()
	embed := &mockEmbedder{err: embedErr}
	ingestRepo := &mockIngestRepo{}

	ingest := ingestuc.New(ingestRepo, embed, 2, 64, zap.NewNop())
	retrieve := retrieveuc.New(&mockRetrieveRepo{rows: rows}, zap.NewNop())
	rag := raguc.New(embed, retrieve, nil, zap.NewNop())
	health := healthuc.New(&mockPinger{err: storeErr}, nil, "test")

	return NewServer(ingest, rag, health, 5, 100, zap.NewNop()), ingestRepo
}

// --- Tests ---

func TestIngestEndpoint(t *testing.T) {
	srv, repo := newTestServer(t, nil, nil, nil)
	router := srv.Router(nil)

	body := `{"listings": [
		{"neighborhood": "Lakeside", "price": "450000", "bedrooms": 3, "bathrooms": 2},
		{"neighborhood": "Downtown", "price": "620000", "bedrooms": 2, "bathrooms": 1}
	]}`
	req := httptest.NewRequest("POST", "/ingest", strings.NewReader(body))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var report ingestuc.Report
	if err := json.NewDecoder(rr.Body).Decode(&report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Seen != 2 || report.Inserted != 2 {
		t.Errorf("report = %+v", report)
	}
	if repo.added != 2 {
		t.Errorf("repo stored %d listings, expected 2", repo.added)
	}
}

func TestIngestEndpoint_BadBody(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil, nil)
	router := srv.Router(nil)

	req := httptest.NewRequest("POST", "/ingest", strings.NewReader("{not json"))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Code != CodeBadRequest {
		t.Errorf("code = %s, want %s", errResp.Code, CodeBadRequest)
	}
}

func TestQueryEndpoint(t *testing.T) {
	rows := []listing.Listing{storedListing("Lakeside"), storedListing("Downtown")}
	srv, _ := newTestServer(t, nil, nil, rows)
	router := srv.Router(nil)

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": "lakeside home", "k": 1}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var res raguc.Result
	if err := json.NewDecoder(rr.Body).Decode(&res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Query != "lakeside home" {
		t.Errorf("query = %q", res.Query)
	}
	if len(res.TopK) != 1 {
		t.Errorf("expected 1 context, got %d", len(res.TopK))
	}
}

func TestQueryEndpoint_EmptyQuery(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil, nil)
	router := srv.Router(nil)

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": ""}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestQueryEndpoint_EmbedderDown(t *testing.T) {
	srv, _ := newTestServer(t, domain.ErrEmbedderUnavailable, nil, nil)
	router := srv.Router(nil)

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": "anything"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}

	var errResp ErrorResponse
	if err := json.NewDecoder(rr.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if errResp.Code != CodeEmbedderUnavailable {
		t.Errorf("code = %s, want %s", errResp.Code, CodeEmbedderUnavailable)
	}
}

func TestQueryEndpoint_ProviderError(t *testing.T) {
	srv, _ := newTestServer(t, domain.ErrEmbeddingProvider, nil, nil)
	router := srv.Router(nil)

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": "anything"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil, nil)
	router := srv.Router(nil)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status = %v", body["status"])
	}
	if body["version"] != "test" {
		t.Errorf("version = %v", body["version"])
	}
}

func TestHealthEndpoint_StoreDown(t *testing.T) {
	srv, _ := newTestServer(t, nil, context.DeadlineExceeded, nil)
	router := srv.Router(nil)

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil, nil)
	router := srv.Router(nil)

	req := httptest.NewRequest("GET", "/metrics", http.NoBody)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "go_goroutines") {
		t.Error("metrics output missing runtime collectors")
	}
}

func TestRouter_AuthApplied(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil, nil)
	router := srv.Router([]string{"secret"})

	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query": "x"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401 without a key", rr.Code)
	}
}
