package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/maritime-tutor/backend/internal/model"
	"github.com/maritime-tutor/backend/internal/service"
)

// TurnHandler abstracts the turn orchestrator for both chat endpoints.
type TurnHandler interface {
	HandleTurn(ctx context.Context, userID, sessionID string, role service.PersonaRole, message string) (*service.TurnResult, error)
	HandleTurnStream(ctx context.Context, userID, sessionID string, role service.PersonaRole, message string) <-chan service.StreamEvent
}

type chatRequest struct {
	UserID    string `json:"user_id" validate:"required"`
	Message   string `json:"message" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=student teacher admin"`
	SessionID string `json:"session_id,omitempty"`
}

type sourceDTO struct {
	NodeID         string              `json:"node_id,omitempty"`
	DocumentID     string              `json:"document_id"`
	PageNumber     int                 `json:"page_number"`
	ContentSnippet string              `json:"content_snippet"`
	ImageURL       *string             `json:"image_url,omitempty"`
	BoundingBoxes  []model.BoundingBox `json:"bounding_boxes,omitempty"`
	RelevanceScore float64             `json:"relevance_score"`
}

type chatResponseData struct {
	Answer             string      `json:"answer"`
	Sources            []sourceDTO `json:"sources"`
	EvidenceImages     []string    `json:"evidence_images"`
	SuggestedQuestions []string    `json:"suggested_questions"`
}

type chatResponseMetadata struct {
	AgentType        string   `json:"agent_type"`
	ProcessingTimeMs int64    `json:"processing_time"`
	ToolsUsed        []string `json:"tools_used"`
}

func sessionIDOrNew(sessionID string) string {
	if sessionID != "" {
		return sessionID
	}
	return uuid.New().String()
}

// toSourceDTOs maps retrieval citations (which carry every constituent
// chunk's node id) onto the external response shape's singular node_id —
// the first member chunk of the citation's group, which is the member with
// the lowest chunk index.
func toSourceDTOs(sources []service.Citation) []sourceDTO {
	out := make([]sourceDTO, 0, len(sources))
	for _, c := range sources {
		var nodeID string
		if len(c.NodeIDs) > 0 {
			nodeID = c.NodeIDs[0]
		}
		out = append(out, sourceDTO{
			NodeID:         nodeID,
			DocumentID:     c.DocumentID,
			PageNumber:     c.PageNumber,
			ContentSnippet: c.ContentSnippet,
			ImageURL:       c.ImageURL,
			BoundingBoxes:  c.BoundingBoxes,
			RelevanceScore: c.RelevanceScore,
		})
	}
	return out
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "error",
		"error":  map[string]string{"code": httpStatusCode(status), "message": message},
	})
}

func httpStatusCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "VALIDATION_ERROR"
	case http.StatusUnauthorized:
		return "AUTH_ERROR"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusRequestTimeout:
		return "TIMEOUT"
	case http.StatusTooManyRequests:
		return "QUOTA_EXCEEDED"
	case http.StatusServiceUnavailable:
		return "PERSISTENCE_UNAVAILABLE"
	default:
		return "INTERNAL_ERROR"
	}
}

// Chat handles POST /api/v1/chat: a single non-streaming turn.
func Chat(orchestrator TurnHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if msg := validateStruct(&req); msg != "" {
			respondError(w, http.StatusBadRequest, msg)
			return
		}

		sessionID := sessionIDOrNew(req.SessionID)
		result, err := orchestrator.HandleTurn(r.Context(), req.UserID, sessionID, service.PersonaRole(req.Role), req.Message)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to process turn")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status": "ok",
			"data": chatResponseData{
				Answer:             result.Answer,
				Sources:            toSourceDTOs(result.Sources),
				EvidenceImages:     result.EvidenceImages,
				SuggestedQuestions: result.SuggestedQuestions,
			},
			"metadata": chatResponseMetadata{
				AgentType:        result.Metadata.AgentType,
				ProcessingTimeMs: result.Metadata.ProcessingTimeMs,
				ToolsUsed:        result.Metadata.ToolsUsed,
			},
		})
	}
}

// ChatStream handles POST /api/v1/chat/stream: the same turn, delivered as
// server-sent events per the streaming multiplexer's event ordering.
func ChatStream(orchestrator TurnHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if msg := validateStruct(&req); msg != "" {
			respondError(w, http.StatusBadRequest, msg)
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			respondError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		sessionID := sessionIDOrNew(req.SessionID)
		events := orchestrator.HandleTurnStream(r.Context(), req.UserID, sessionID, service.PersonaRole(req.Role), req.Message)

		for ev := range events {
			if r.Context().Err() != nil {
				return
			}
			sendSSEEvent(w, flusher, ev)
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, ev service.StreamEvent) {
	payload := map[string]interface{}{}
	switch ev.Type {
	case service.StreamThinking, service.StreamAnswer:
		payload["text"] = ev.Text
	case service.StreamSources:
		payload["sources"] = toSourceDTOs(ev.Sources)
		payload["evidence_images"] = ev.Evidence
	case service.StreamMetadata:
		if ev.Metadata != nil {
			payload["agent_type"] = ev.Metadata.AgentType
			payload["processing_time"] = ev.Metadata.ProcessingTimeMs
			payload["tools_used"] = ev.Metadata.ToolsUsed
		}
	case service.StreamError:
		payload["message"] = ev.Error
	}

	data, _ := json.Marshal(payload)
	w.Write([]byte("event: " + string(ev.Type) + "\n"))
	w.Write([]byte("data: "))
	w.Write(data)
	w.Write([]byte("\n\n"))
	flusher.Flush()
}
