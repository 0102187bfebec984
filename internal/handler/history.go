package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/maritime-tutor/backend/internal/model"
)

// HistoryLister abstracts paged, blocked-excluded chat history retrieval.
type HistoryLister interface {
	ListHistory(ctx context.Context, userID string, limit, offset int) ([]model.ChatMessage, int, error)
}

// History handles GET /api/v1/history/{user_id}?limit=20&offset=0.
func History(repo HistoryLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := routeParam(r, "user_id")
		if userID == "" {
			respondError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 {
			limit = 20
		}
		offset, _ := strconv.Atoi(q.Get("offset"))

		messages, total, err := repo.ListHistory(r.Context(), userID, limit, offset)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to load history")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]interface{}{
			"status": "ok",
			"data": map[string]interface{}{
				"messages": messages,
				"total":    total,
				"limit":    limit,
				"offset":   offset,
			},
		})
	}
}

// HistoryPurger abstracts deleting a user's chat history.
type HistoryPurger interface {
	PurgeUser(ctx context.Context, userID string) error
}

type deleteHistoryRequest struct {
	Role             string `json:"role"`
	RequestingUserID string `json:"requesting_user_id"`
}

// DeleteHistory handles DELETE /api/v1/chat/history/{user_id}. Admins may
// delete any user's history; everyone else may only delete their own.
func DeleteHistory(repo HistoryPurger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := routeParam(r, "user_id")
		if userID == "" {
			respondError(w, http.StatusBadRequest, "user_id is required")
			return
		}

		var req deleteHistoryRequest
		if err := decodeJSON(r, &req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.RequestingUserID == "" {
			respondError(w, http.StatusBadRequest, "requesting_user_id is required")
			return
		}
		if req.Role != "admin" && req.RequestingUserID != userID {
			respondError(w, http.StatusForbidden, "only an admin may delete another user's history")
			return
		}

		if err := repo.PurgeUser(r.Context(), userID); err != nil {
			respondError(w, http.StatusInternalServerError, "failed to delete history")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		writeJSON(w, map[string]interface{}{"status": "ok", "data": map[string]interface{}{"deleted": true}})
	}
}
