package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/maritime-tutor/backend/internal/cache"
	"github.com/maritime-tutor/backend/internal/config"
	"github.com/maritime-tutor/backend/internal/gcpclient"
	"github.com/maritime-tutor/backend/internal/handler"
	"github.com/maritime-tutor/backend/internal/middleware"
	"github.com/maritime-tutor/backend/internal/repository"
	"github.com/maritime-tutor/backend/internal/router"
	"github.com/maritime-tutor/backend/internal/service"
)

const Version = "0.3.0"

// pingFunc adapts a HealthCheck(ctx) error method to handler.ComponentPinger,
// whose Ping method name is shared across every backing component regardless
// of what its owning adapter calls the underlying check.
type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func healthChecks(
	pool handler.ComponentPinger,
	docAI *gcpclient.DocumentAIAdapter,
	embedder *gcpclient.RateLimitedEmbedder,
	genAI *gcpclient.RateLimitedGenAI,
	redisCache *cache.RedisModerationCache,
) map[string]handler.ComponentPinger {
	checks := map[string]handler.ComponentPinger{
		"database":    pool,
		"document_ai": pingFunc(docAI.HealthCheck),
		"embedding":   pingFunc(embedder.HealthCheck),
		"gen_ai":      pingFunc(genAI.HealthCheck),
	}
	if redisCache != nil {
		checks["redis"] = pingFunc(redisCache.HealthCheck)
	}
	return checks
}

func getPort() string {
	if port := os.Getenv("PORT"); port != "" {
		return port
	}
	return "8080"
}

// closer is anything torn down on shutdown, in reverse build order.
type closer func()

// buildRouter wires config, persistence, Google Cloud adapters, caches,
// services and tools into the Dependencies the router needs, per the
// dependency-injection pattern: the router only ever sees narrow
// handler-facing interfaces, never concrete services.
func buildRouter(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (http.Handler, []closer, error) {
	var closers []closer

	pool, err := repository.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("main.buildRouter: db pool: %w", err)
	}
	closers = append(closers, func() { pool.Close() })

	chatRepo := repository.NewChatRepo(pool)
	chunkRepo := repository.NewChunkRepo(pool)
	docRepo := repository.NewDocumentRepo(pool)
	memoryRepo := repository.NewMemoryRepo(pool)
	profileRepo := repository.NewProfileRepo(pool)

	docAI, err := gcpclient.NewDocumentAIAdapter(ctx, cfg.GCPProject, cfg.DocAILocation)
	if err != nil {
		return nil, nil, fmt.Errorf("main.buildRouter: document ai adapter: %w", err)
	}
	closers = append(closers, docAI.Close)

	embeddingBase, err := gcpclient.NewEmbeddingAdapter(ctx, cfg.GCPProject, cfg.EmbeddingLocation, cfg.EmbeddingModel)
	if err != nil {
		return nil, nil, fmt.Errorf("main.buildRouter: embedding adapter: %w", err)
	}
	embeddingAdapter := gcpclient.NewRateLimitedEmbedder(embeddingBase, cfg.EmbeddingRateLimitRPS, cfg.EmbeddingRateLimitBurst)

	genAIBase, err := gcpclient.NewGenAIAdapter(ctx, cfg.GCPProject, cfg.VertexAILocation, cfg.VertexAIModel)
	if err != nil {
		return nil, nil, fmt.Errorf("main.buildRouter: gen ai adapter: %w", err)
	}
	closers = append(closers, genAIBase.Close)
	genAI := gcpclient.NewRateLimitedGenAI(genAIBase, cfg.GenAIRateLimitRPS, cfg.GenAIRateLimitBurst)

	storage, err := gcpclient.NewStorageAdapter(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("main.buildRouter: storage adapter: %w", err)
	}
	closers = append(closers, storage.Close)

	pdfRenderer := gcpclient.NewPDFRenderer()

	embeddingCache := cache.NewEmbeddingCache(cfg.EmbeddingCacheTTL)
	closers = append(closers, embeddingCache.Stop)
	var moderationCache service.ModerationCacheStore
	var redisModerationCache *cache.RedisModerationCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("main.buildRouter: parsing REDIS_URL: %w", err)
		}
		redisClient := redis.NewClient(opts)
		closers = append(closers, func() { redisClient.Close() })
		redisModerationCache = cache.NewRedisModerationCache(redisClient, cfg.ModerationTTL)
		moderationCache = redisModerationCache
	} else {
		inMemory := cache.NewModerationCache(cfg.ModerationTTL)
		closers = append(closers, inMemory.Stop)
		moderationCache = inMemory
	}
	queryEmbedder := gcpclient.NewQueryEmbedder(embeddingAdapter, embeddingCache)

	retriever := service.NewRetrieverService(chunkRepo, queryEmbedder)
	retriever.Configure(cfg.RetrieverTopK, cfg.RetrieverAlpha)

	moderation := service.NewModerationGate(genAI, moderationCache, cfg.ModerationEnabled, cfg.ModerationTimeout)
	if wordlist, err := service.LoadModerationWordlist("moderation_wordlist", cfg.ModerationWordlistDir); err != nil {
		slog.Warn("moderation wordlist load failed, using built-in defaults only", "error", err)
	} else {
		moderation.ApplyWordlist(wordlist)
	}

	orchestrator := service.NewTurnOrchestrator(moderation, chatRepo, memoryRepo, profileRepo, genAI, retriever)

	parser := service.NewParserService(docAI, fmt.Sprintf("projects/%s/locations/%s/processors/%s", cfg.GCPProject, cfg.DocAILocation, cfg.DocAIProcessorID))
	chunker := service.NewSemanticChunkerService()
	embedder := service.NewEmbedderService(embeddingAdapter)
	ingestion := service.NewIngestionService(
		storage, parser, pdfRenderer, genAI, storage, chunker, embedder,
		chunkRepo, docRepo, cfg.GCSBucketName, cfg.IngestionConcurrency,
	)

	metrics := middleware.NewMetrics(reg)
	orchestrator.SetMetrics(metrics)

	generalLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests:     120,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	})
	closers = append(closers, generalLimiter.Stop)

	chatLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		MaxRequests:     20,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	})
	closers = append(closers, chatLimiter.Stop)

	deps := &router.Dependencies{
		Version:     Version,
		FrontendURL: os.Getenv("FRONTEND_URL"),
		APIKey:      cfg.APIKey,
		Metrics:     metrics,
		MetricsReg:  reg,
		HealthChecks: healthChecks(pool, docAI, embeddingAdapter, genAI, redisModerationCache),
		Turn:    orchestrator,
		Sources: chunkRepo,
		Source:  chunkRepo,
		History: chatRepo,
		Facts:   memoryRepo,
		Knowledge: handler.KnowledgeIngestDeps{
			Docs:       docRepo,
			Uploader:   storage,
			Jobs:       ingestion,
			BucketName: cfg.GCSBucketName,
		},
		Docs:               docRepo,
		Stats:              docRepo,
		GeneralRateLimiter: generalLimiter,
		ChatRateLimiter:    chatLimiter,
	}

	return router.New(deps), closers, nil
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	reg := prometheus.NewRegistry()
	handlerRouter, closers, err := buildRouter(ctx, cfg, reg)
	if err != nil {
		return fmt.Errorf("wiring: %w", err)
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}()

	port := getPort()
	if cfg.Port != 0 {
		port = fmt.Sprintf("%d", cfg.Port)
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      handlerRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 180 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("maritime tutor backend starting", "version", Version, "port", port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("received signal %s, shutting down gracefully", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Println("server stopped")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
