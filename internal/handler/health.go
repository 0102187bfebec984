package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// ComponentPinger checks connectivity to one backing component (database,
// model adapter). HealthDB times each Ping call itself.
type ComponentPinger interface {
	Ping(ctx context.Context) error
}

// componentStatus is one entry in the deep health check's per-component report.
type componentStatus struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latencyMs"`
	Message   string `json:"message,omitempty"`
}

// Health returns the shallow liveness handler.
// GET /health — MUST NOT touch the database or any other backing store.
func Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}

// HealthDB returns the deep readiness handler, pinging persistence and model
// adapters and reporting per-component status.
// GET /health/db — each named component is pinged with its own 3s timeout.
func HealthDB(components map[string]ComponentPinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		results := make(map[string]componentStatus, len(components))
		overallOK := true

		for name, pinger := range components {
			ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
			start := time.Now()
			err := pinger.Ping(ctx)
			cancel()

			cs := componentStatus{Status: "ok", LatencyMs: time.Since(start).Milliseconds()}
			if err != nil {
				cs.Status = "error"
				cs.Message = err.Error()
				overallOK = false
			}
			results[name] = cs
		}

		httpStatus := http.StatusOK
		status := "ok"
		if !overallOK {
			httpStatus = http.StatusServiceUnavailable
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(httpStatus)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":     status,
			"components": results,
		})
	}
}
