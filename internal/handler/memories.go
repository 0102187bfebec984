package handler

import (
	"context"
	"net/http"

	"github.com/maritime-tutor/backend/internal/model"
)

// FactLister abstracts reading a user's managed insight list.
type FactLister interface {
	ListFacts(ctx context.Context, userID string, limit int) ([]model.MemoryFact, error)
}

type memoryFactDTO struct {
	FactType  model.FactType `json:"fact_type"`
	Content   string         `json:"content"`
	CreatedAt string         `json:"created_at"`
}

// Memories handles GET /api/v1/memories/{user_id}.
func Memories(repo FactLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := routeParam(r, "user_id")
		if userID == "" {
			respondError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		facts, err := repo.ListFacts(r.Context(), userID, model.MemoryFactCap)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load memories")
			return
		}

		dtos := make([]memoryFactDTO, len(facts))
		for i, f := range facts {
			dtos[i] = memoryFactDTO{
				FactType:  f.FactType,
				Content:   f.Content,
				CreatedAt: f.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]interface{}{
			"status": "ok",
			"data": map[string]interface{}{
				"user_id":    userID,
				"total_facts": len(facts),
				"max_facts":   model.MemoryFactCap,
				"facts":       dtos,
			},
		})
	}
}
