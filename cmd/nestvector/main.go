package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/nestvector/nestvector/internal/config"
	"github.com/nestvector/nestvector/internal/db"
	dbredis "github.com/nestvector/nestvector/internal/db/redis"
	"github.com/nestvector/nestvector/internal/domain"
	logpkg "github.com/nestvector/nestvector/internal/logger"
	"github.com/nestvector/nestvector/internal/metrics"
	"github.com/nestvector/nestvector/internal/repository/embcache"
	listingrepo "github.com/nestvector/nestvector/internal/repository/listing"
	chitransport "github.com/nestvector/nestvector/internal/transport/chi"
	openaitransport "github.com/nestvector/nestvector/internal/transport/openai"
	healthuc "github.com/nestvector/nestvector/internal/usecase/health"
	ingestuc "github.com/nestvector/nestvector/internal/usecase/ingest"
	raguc "github.com/nestvector/nestvector/internal/usecase/rag"
	retrieveuc "github.com/nestvector/nestvector/internal/usecase/retrieve"
	"github.com/nestvector/nestvector/internal/version"
)

func main() {
	// .env is optional; real env vars win either way
	_ = godotenv.Load()

	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting nestvector server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	// Valkey speaks the same protocol, one rueidis store serves both drivers.
	store, err := dbredis.NewStore(dbredis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register domain metrics explicitly (no init())
	metrics.Register()

	embedder := buildEmbedder(cfg, store, logger)
	generator := buildGenerator(cfg, logger)

	repo := listingrepo.New(store, cfg.Storage.KeyPrefix, cfg.Storage.Table, cfg.Embedding.Dimensions).
		WithHNSW(listingrepo.HNSWConfig{
			M:           cfg.Index.HNSWM,
			EFConstruct: cfg.Index.HNSWEFConstruct,
		}).
		WithIndexParams(indexAlgorithm(cfg.Index.Algorithm), db.DistanceCosine)

	if err := repo.CreateOrOpen(ctx, cfg.Ingest.ForceRecreate); err != nil {
		logger.Fatal("Failed to open listing table", zap.Error(err),
			zap.String("table", cfg.Storage.Table),
			zap.Int("dimensions", cfg.Embedding.Dimensions),
		)
	}

	ingestSvc := ingestuc.New(repo, embedder, cfg.Ingest.Workers, cfg.Ingest.BatchSize, logger)
	retrieveSvc := retrieveuc.New(repo, logger)
	ragSvc := raguc.New(embedder, retrieveSvc, generator, logger)
	healthSvc := healthuc.New(store, embeddingHealthChecker(embedder), version.Version)

	server := chitransport.NewServer(
		ingestSvc, ragSvc, healthSvc,
		cfg.Index.DefaultTopK, cfg.Index.MaxTopK,
		logger,
	)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.Router(cfg.Auth.APIKeys),
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildEmbedder assembles the embedder chain: provider wrapped in the
// key-value cache. Returns nil when no API key is configured; callers map
// nil to domain.ErrEmbedderUnavailable.
func buildEmbedder(cfg config.Config, store db.Store, logger *zap.Logger) domain.Embedder {
	provider := openaitransport.NewEmbedder(&openaitransport.EmbedderConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dimensions: cfg.Embedding.Dimensions,
		Provider:   cfg.Embedding.Provider,
		Logger:     logger,
	})
	if provider == nil {
		logger.Warn("No embedding API key configured, ingestion and queries will fail")
		return nil
	}

	logger.Info("Embedder created",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions),
	)

	cacheTTL := time.Duration(cfg.Embedding.CacheTTL) * time.Second
	return embcache.New(provider, store, cfg.Storage.KeyPrefix, cfg.Embedding.Model,
		cfg.Embedding.Dimensions, cacheTTL, metrics.EmbeddingCacheTotal, logger)
}

// buildGenerator assembles the optional answer generator. Nil means queries
// return raw retrieved contexts.
func buildGenerator(cfg config.Config, logger *zap.Logger) domain.Generator {
	provider := openaitransport.NewGenerator(&openaitransport.GeneratorConfig{
		APIKey:      cfg.Generation.APIKey,
		BaseURL:     cfg.Generation.BaseURL,
		Model:       cfg.Generation.Model,
		Temperature: cfg.Generation.Temperature,
		MaxTokens:   cfg.Generation.MaxTokens,
		Provider:    cfg.Generation.Provider,
		Logger:      logger,
	})
	if provider == nil {
		logger.Info("No generation API key configured, queries return raw contexts")
		return nil
	}

	logger.Info("Generator created",
		zap.String("provider", cfg.Generation.Provider),
		zap.String("model", cfg.Generation.Model),
	)
	return provider
}

func indexAlgorithm(name string) db.VectorAlgorithm {
	if name == "flat" {
		return db.VectorFlat
	}
	return db.VectorHNSW
}

// embeddingHealthChecker unwraps the cache decorator to reach the provider's
// health probe. A nil embedder yields a nil checker: the health service then
// reports the component as skipped.
func embeddingHealthChecker(embedder domain.Embedder) healthuc.EmbeddingChecker {
	if embedder == nil {
		return nil
	}
	if hc, ok := embedder.(domain.HealthChecker); ok {
		return hc
	}
	type unwrapper interface{ Unwrap() domain.Embedder }
	if u, ok := embedder.(unwrapper); ok {
		return embeddingHealthChecker(u.Unwrap())
	}
	return nil
}
