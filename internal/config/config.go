package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. It is immutable after Load() returns.
type Config struct {
	Port             int
	Environment      string
	DatabaseURL      string
	DatabaseMaxConns int

	GCPProject        string
	VertexAILocation  string
	VertexAIModel     string
	EmbeddingLocation string
	EmbeddingModel    string
	DocAIProcessorID  string
	DocAILocation     string
	GCSBucketName     string

	APIKey string

	RetrieverTopK     int
	RetrieverAlpha    float64
	ModerationEnabled bool
	ModerationTimeout time.Duration
	ModerationTTL     time.Duration
	EmbeddingCacheTTL time.Duration

	IngestionConcurrency int
	MaxIngestPages       int

	PromptsDir          string
	ModerationWordlistDir string

	GenAIRateLimitRPS      float64
	GenAIRateLimitBurst    int
	EmbeddingRateLimitRPS  float64
	EmbeddingRateLimitBurst int

	RedisURL string
}

// Load reads configuration from environment variables. DATABASE_URL and
// GOOGLE_CLOUD_PROJECT are required; everything else falls back to a
// sensible default.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("config.Load: DATABASE_URL is required")
	}

	gcpProject := os.Getenv("GOOGLE_CLOUD_PROJECT")
	if gcpProject == "" {
		return nil, fmt.Errorf("config.Load: GOOGLE_CLOUD_PROJECT is required")
	}

	cfg := &Config{
		Port:             envInt("PORT", 8080),
		Environment:      envStr("ENVIRONMENT", "development"),
		DatabaseURL:      dbURL,
		DatabaseMaxConns: envInt("DATABASE_MAX_CONNS", 25),

		GCPProject:        gcpProject,
		VertexAILocation:  envStr("VERTEX_AI_LOCATION", "us-central1"),
		VertexAIModel:     envStr("VERTEX_AI_MODEL", "gemini-2.5-pro"),
		EmbeddingLocation: envStr("VERTEX_AI_EMBEDDING_LOCATION", envStr("VERTEX_AI_LOCATION", "us-central1")),
		EmbeddingModel:    envStr("VERTEX_AI_EMBEDDING_MODEL", "text-embedding-004"),
		DocAIProcessorID:  envStr("DOCUMENT_AI_PROCESSOR_ID", ""),
		DocAILocation:     envStr("DOCUMENT_AI_LOCATION", "us"),
		GCSBucketName:     envStr("GCS_BUCKET_NAME", ""),

		APIKey: envStr("API_KEY", ""),

		RetrieverTopK:     envInt("RETRIEVER_TOP_K", 8),
		RetrieverAlpha:    envFloat("RETRIEVER_DENSE_WEIGHT", 0.6),
		ModerationEnabled: envBool("MODERATION_LLM_ENABLED", true),
		ModerationTimeout: envDurationSeconds("MODERATION_LLM_TIMEOUT_SECONDS", 3*time.Second),
		ModerationTTL:     envDurationSeconds("MODERATION_CACHE_TTL_SECONDS", 10*time.Minute),
		EmbeddingCacheTTL: envDurationSeconds("EMBEDDING_CACHE_TTL_SECONDS", 15*time.Minute),

		IngestionConcurrency: envInt("INGESTION_PAGE_CONCURRENCY", 4),
		MaxIngestPages:        envInt("MAX_INGEST_PAGES", 0),

		PromptsDir:            envStr("PROMPTS_DIR", "./internal/service/prompts"),
		ModerationWordlistDir: envStr("MODERATION_WORDLIST_DIR", "./config"),

		GenAIRateLimitRPS:       envFloat("GENAI_RATE_LIMIT_RPS", 5),
		GenAIRateLimitBurst:     envInt("GENAI_RATE_LIMIT_BURST", 10),
		EmbeddingRateLimitRPS:   envFloat("EMBEDDING_RATE_LIMIT_RPS", 10),
		EmbeddingRateLimitBurst: envInt("EMBEDDING_RATE_LIMIT_BURST", 20),

		RedisURL: envStr("REDIS_URL", ""),
	}

	if cfg.Environment != "development" && cfg.APIKey == "" {
		return nil, fmt.Errorf("config.Load: API_KEY is required in %s environment", cfg.Environment)
	}

	return cfg, nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDurationSeconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return fallback
	}
	return time.Duration(secs) * time.Second
}
