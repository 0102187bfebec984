package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/maritime-tutor/backend/internal/model"
	"github.com/maritime-tutor/backend/internal/repository"
)

// ChunkLister abstracts filtered, paginated chunk listing.
type ChunkLister interface {
	ListChunks(ctx context.Context, filter repository.ChunkFilter, page, limit int) ([]model.DocumentChunk, int, error)
}

// ChunkGetter abstracts single-chunk lookup by node id.
type ChunkGetter interface {
	GetChunkByID(ctx context.Context, nodeID string) (*model.DocumentChunk, error)
}

// ListSources handles GET /api/v1/sources/ — paginated chunk listing with
// filters document_id, content_type, page_number.
func ListSources(repo ChunkLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		pageNumber, _ := strconv.Atoi(q.Get("page_number"))

		filter := repository.ChunkFilter{
			DocumentID:  q.Get("document_id"),
			ContentType: model.ContentType(q.Get("content_type")),
			PageNumber:  pageNumber,
		}

		chunks, total, err := repo.ListChunks(r.Context(), filter, page, limit)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to list sources")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]interface{}{
			"status": "ok",
			"data": map[string]interface{}{
				"sources": chunks,
				"total":   total,
			},
		})
	}
}

// GetSource handles GET /api/v1/sources/{node_id} — full chunk including
// bounding_boxes and image_url. 404 if missing.
func GetSource(repo ChunkGetter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		nodeID := routeParam(r, "node_id")
		if nodeID == "" {
			respondError(w, http.StatusBadRequest, "node_id is required")
			return
		}

		chunk, err := repo.GetChunkByID(r.Context(), nodeID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to fetch source")
			return
		}
		if chunk == nil {
			respondError(w, http.StatusNotFound, "source not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]interface{}{
			"status": "ok",
			"data":   chunk,
		})
	}
}
