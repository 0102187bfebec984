package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/maritime-tutor/backend/internal/handler"
	"github.com/maritime-tutor/backend/internal/middleware"
)

// Dependencies holds every handler-facing service needed to build the router.
type Dependencies struct {
	Version    string
	FrontendURL string
	APIKey     string
	Metrics    *middleware.Metrics
	MetricsReg *prometheus.Registry

	HealthChecks map[string]handler.ComponentPinger

	Turn handler.TurnHandler

	Sources handler.ChunkLister
	Source  handler.ChunkGetter
	History interface {
		handler.HistoryLister
		handler.HistoryPurger
	}
	Facts handler.FactLister

	Knowledge handler.KnowledgeIngestDeps
	Docs      handler.KnowledgeDocLister
	Stats     handler.KnowledgeStatsGetter

	GeneralRateLimiter *middleware.RateLimiter
	ChatRateLimiter    *middleware.RateLimiter
}

// New creates and configures the Chi router with every route in the external
// interface list, grouped under API-key auth except the liveness/readiness
// probes and the Prometheus scrape endpoint.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	r.Get("/health", handler.Health())
	r.Get("/health/db", handler.HealthDB(deps.HealthChecks))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(deps.APIKey))
		if deps.GeneralRateLimiter != nil {
			r.Use(middleware.RateLimit(deps.GeneralRateLimiter))
		}

		timeout30s := middleware.Timeout(30 * time.Second)

		if deps.ChatRateLimiter != nil {
			r.With(middleware.RateLimit(deps.ChatRateLimiter)).Post("/api/v1/chat", handler.Chat(deps.Turn))
			r.With(middleware.RateLimit(deps.ChatRateLimiter)).Post("/api/v1/chat/stream", handler.ChatStream(deps.Turn))
		} else {
			r.Post("/api/v1/chat", handler.Chat(deps.Turn))
			r.Post("/api/v1/chat/stream", handler.ChatStream(deps.Turn))
		}

		r.With(timeout30s).Get("/api/v1/sources/", handler.ListSources(deps.Sources))
		r.With(timeout30s).Get("/api/v1/sources/{node_id}", handler.GetSource(deps.Source))

		r.With(timeout30s).Get("/api/v1/history/{user_id}", handler.History(deps.History))
		r.With(timeout30s).Delete("/api/v1/chat/history/{user_id}", handler.DeleteHistory(deps.History))

		r.With(timeout30s).Get("/api/v1/memories/{user_id}", handler.Memories(deps.Facts))

		r.With(middleware.Timeout(180 * time.Second)).Post("/api/v1/knowledge/ingest-multimodal", handler.IngestMultimodal(deps.Knowledge))
		r.With(timeout30s).Get("/api/v1/knowledge/jobs/{job_id}", handler.JobStatus(deps.Knowledge.Jobs))
		r.With(timeout30s).Get("/api/v1/knowledge/list", handler.KnowledgeList(deps.Docs))
		r.With(timeout30s).Get("/api/v1/knowledge/stats", handler.KnowledgeStats(deps.Stats))
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "error",
			"error":  map[string]string{"code": "NOT_FOUND", "message": "route not found"},
		})
	})

	return r
}
