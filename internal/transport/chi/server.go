// Package chi implements the HTTP API: listing ingestion, RAG queries,
// health, and metrics.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	logpkg "github.com/nestvector/nestvector/internal/logger"

	"github.com/nestvector/nestvector/internal/domain"
	"github.com/nestvector/nestvector/internal/domain/listing"
	"github.com/nestvector/nestvector/internal/metrics"
	healthuc "github.com/nestvector/nestvector/internal/usecase/health"
	ingestuc "github.com/nestvector/nestvector/internal/usecase/ingest"
	raguc "github.com/nestvector/nestvector/internal/usecase/rag"
)

// ErrorCode identifies an API error category.
type ErrorCode string

const (
	CodeBadRequest          ErrorCode = "bad_request"
	CodeValidationFailed    ErrorCode = "validation_failed"
	CodeUnauthorized        ErrorCode = "unauthorized"
	CodeEmbedderUnavailable ErrorCode = "embedder_unavailable"
	CodeEmbeddingProvider   ErrorCode = "embedding_provider_error"
	CodeDimensionMismatch   ErrorCode = "dimension_mismatch"
	CodeStoreWriteFailed    ErrorCode = "store_write_failed"
	CodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// IngestRequest is the POST /ingest body.
type IngestRequest struct {
	Listings []listing.Raw `json:"listings"`
}

// QueryRequest is the POST /query body.
type QueryRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the ingestion and query usecases over HTTP.
type Server struct {
	ingest        *ingestuc.Service
	rag           *raguc.Service
	health        *healthuc.Service
	defaultTopK   int
	maxTopK       int
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates the HTTP API server.
func NewServer(
	ingest *ingestuc.Service,
	rag *raguc.Service,
	health *healthuc.Service,
	defaultTopK, maxTopK int,
	logger *zap.Logger,
) *Server {
	s := &Server{
		ingest:      ingest,
		rag:         rag,
		health:      health,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
		logger:      logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmbedderUnavailable, http.StatusServiceUnavailable, CodeEmbedderUnavailable),
		sentinelHandler(domain.ErrEmbeddingProvider, http.StatusBadGateway, CodeEmbeddingProvider),
		sentinelHandler(domain.ErrDimensionMismatch, http.StatusInternalServerError, CodeDimensionMismatch),
		sentinelHandler(domain.ErrStoreWrite, http.StatusInternalServerError, CodeStoreWriteFailed),
	}
	return s
}

// Router builds the chi router with middleware and all routes mounted.
func (s *Server) Router(apiKeys []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogMiddleware(s.logger))
	r.Use(metrics.Middleware())
	r.Use(BearerAuthMiddleware(apiKeys))

	r.Post("/ingest", s.Ingest)
	r.Post("/query", s.Query)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	return r
}

// Ingest handles POST /ingest.
func (s *Server) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	report, err := s.ingest.Ingest(r.Context(), req.Listings)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Query handles POST /query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.Query == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "query is required")
		return
	}

	k := req.K
	if k <= 0 {
		k = s.defaultTopK
	}
	if k > s.maxTopK {
		k = s.maxTopK
	}

	res, err := s.rag.Query(r.Context(), req.Query, k)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":  report.Status,
		"version": report.Version,
		"checks":  report.Checks,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without
// exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmbedderUnavailable,
		domain.ErrEmbeddingProvider,
		domain.ErrDimensionMismatch,
		domain.ErrStoreWrite,
		domain.ErrSchemaMismatch,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			log.Warn("domain error", zap.Error(err))
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

// requestLogMiddleware attaches a request-scoped logger to the context and
// emits one canonical log line per request.
func requestLogMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			requestID := middleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
