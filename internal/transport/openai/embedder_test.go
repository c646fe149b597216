package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/metrics"
)

func TestMain(m *testing.M) {
	metrics.Register()
	os.Exit(m.Run())
}

// openaiEmbeddingResponse mirrors the OpenAI-compatible API embedding response.
type openaiEmbeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

func embeddingServer(t *testing.T, vec []float32, tokens int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("unexpected auth header: %s", r.Header.Get("Authorization"))
		}

		resp := openaiEmbeddingResponse{
			Object: "list",
			Model:  "test-model",
		}
		resp.Data = append(resp.Data, struct {
			Object    string    `json:"object"`
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{
			Object:    "embedding",
			Embedding: vec,
			Index:     0,
		})
		resp.Usage.PromptTokens = tokens
		resp.Usage.TotalTokens = tokens

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedder_Embed(t *testing.T) {
	expectedVec := []float32{0.1, 0.2, 0.3, 0.4}

	server := embeddingServer(t, expectedVec, 10)
	defer server.Close()

	emb := NewEmbedder(&EmbedderConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "test-model",
		Dimensions: 4,
		Provider:   "test",
		Logger:     zap.NewNop(),
	})

	result, err := emb.Embed(context.Background(), "cozy bungalow near the park")
	if err != nil {
		t.Fatalf("Embed failed: %v", err)
	}

	if len(result.Embedding) != len(expectedVec) {
		t.Fatalf("expected %d dimensions, got %d", len(expectedVec), len(result.Embedding))
	}
	for i, v := range result.Embedding {
		if v != expectedVec[i] {
			t.Errorf("vec[%d] = %f, expected %f", i, v, expectedVec[i])
		}
	}
	if result.PromptTokens != 10 || result.TotalTokens != 10 {
		t.Errorf("usage = (%d, %d), expected (10, 10)", result.PromptTokens, result.TotalTokens)
	}
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	server := embeddingServer(t, []float32{0.1, 0.2}, 5)
	defer server.Close()

	emb := NewEmbedder(&EmbedderConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "test-model",
		Dimensions: 4,
		Provider:   "test",
		Logger:     zap.NewNop(),
	})

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestEmbedder_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{
				"message": "rate limit exceeded",
				"type":    "rate_limit_error",
			},
		})
	}))
	defer server.Close()

	emb := NewEmbedder(&EmbedderConfig{
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Model:    "test-model",
		Provider: "test",
		Logger:   zap.NewNop(),
	})

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, domain.ErrEmbeddingProvider) {
		t.Fatalf("expected ErrEmbeddingProvider, got %v", err)
	}
}

func TestNewEmbedder_EmptyKey(t *testing.T) {
	emb := NewEmbedder(&EmbedderConfig{
		Model:  "test-model",
		Logger: zap.NewNop(),
	})
	if emb != nil {
		t.Fatal("expected nil embedder for empty API key")
	}
}

func TestExtractDetail(t *testing.T) {
	if got := extractDetail([]byte(`{"detail": "index missing"}`)); got != "index missing" {
		t.Errorf("extractDetail = %q, expected %q", got, "index missing")
	}
	if got := extractDetail([]byte(`not json`)); got != "" {
		t.Errorf("extractDetail = %q, expected empty", got)
	}
}
