package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maritime-tutor/backend/internal/handler"
	"github.com/maritime-tutor/backend/internal/model"
	"github.com/maritime-tutor/backend/internal/repository"
	"github.com/maritime-tutor/backend/internal/service"
)

type mockPinger struct{ err error }

func (m *mockPinger) Ping(ctx context.Context) error { return m.err }

type mockTurnHandler struct{}

func (m *mockTurnHandler) HandleTurn(ctx context.Context, userID, sessionID string, role service.PersonaRole, message string) (*service.TurnResult, error) {
	return &service.TurnResult{Answer: "steer to starboard"}, nil
}

func (m *mockTurnHandler) HandleTurnStream(ctx context.Context, userID, sessionID string, role service.PersonaRole, message string) <-chan service.StreamEvent {
	ch := make(chan service.StreamEvent, 1)
	ch <- service.StreamEvent{Type: service.StreamDone}
	close(ch)
	return ch
}

type mockChunkRepo struct{}

func (m *mockChunkRepo) ListChunks(ctx context.Context, filter repository.ChunkFilter, page, limit int) ([]model.DocumentChunk, int, error) {
	return []model.DocumentChunk{}, 0, nil
}

func (m *mockChunkRepo) GetChunkByID(ctx context.Context, nodeID string) (*model.DocumentChunk, error) {
	return nil, errors.New("not found")
}

type mockHistoryRepo struct{}

func (m *mockHistoryRepo) ListHistory(ctx context.Context, userID string, limit, offset int) ([]model.ChatMessage, int, error) {
	return []model.ChatMessage{}, 0, nil
}

func (m *mockHistoryRepo) PurgeUser(ctx context.Context, userID string) error { return nil }

type mockFactRepo struct{}

func (m *mockFactRepo) ListFacts(ctx context.Context, userID string, limit int) ([]model.MemoryFact, error) {
	return []model.MemoryFact{}, nil
}

type mockDocUpserter struct{}

func (m *mockDocUpserter) GetByID(ctx context.Context, id string) (*model.Document, error) {
	return nil, errors.New("not found")
}

func (m *mockDocUpserter) Create(ctx context.Context, doc *model.Document) error { return nil }

type mockFileUploader struct{}

func (m *mockFileUploader) Upload(ctx context.Context, bucket, object string, data []byte, contentType string) error {
	return nil
}

type mockJobRunner struct{}

func (m *mockJobRunner) StartJob(ctx context.Context, opts service.IngestionOptions) *model.IngestionJob {
	return &model.IngestionJob{ID: "job-1"}
}

func (m *mockJobRunner) Job(jobID string) (*model.IngestionJob, bool) {
	return &model.IngestionJob{ID: jobID}, true
}

type mockDocLister struct{}

func (m *mockDocLister) List(ctx context.Context, limit, offset int) ([]model.Document, int, error) {
	return []model.Document{}, 0, nil
}

type mockStatsGetter struct{}

func (m *mockStatsGetter) Stats(ctx context.Context) (int, int, error) { return 0, 0, nil }

const testAPIKey = "test-api-key-123"

func newTestRouter() http.Handler {
	deps := &Dependencies{
		Version:     "0.1.0",
		FrontendURL: "http://localhost:3000",
		APIKey:      testAPIKey,
		HealthChecks: map[string]handler.ComponentPinger{
			"database": &mockPinger{},
		},
		Turn:    &mockTurnHandler{},
		Sources: &mockChunkRepo{},
		Source:  &mockChunkRepo{},
		History: &mockHistoryRepo{},
		Facts:   &mockFactRepo{},
		Knowledge: handler.KnowledgeIngestDeps{
			Docs:       &mockDocUpserter{},
			Uploader:   &mockFileUploader{},
			Jobs:       &mockJobRunner{},
			BucketName: "test-bucket",
		},
		Docs:  &mockDocLister{},
		Stats: &mockStatsGetter{},
	}
	return New(deps)
}

func TestHealth_IsPublic(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
}

func TestHealthDB_IsPublicAndReportsComponents(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health/db", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestChat_RequiresAPIKey(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestChat_WithAPIKey(t *testing.T) {
	r := newTestRouter()

	body := `{"user_id":"u1","message":"what do I do in a crossing situation"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
}

func TestSources_RequiresAPIKey(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sources/", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHistory_DeleteRequiresAPIKey(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/chat/history/u1", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestKnowledgeList_WithAPIKey(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/knowledge/list", nil)
	req.Header.Set("X-API-Key", testAPIKey)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	r := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "error" {
		t.Error("expected status=error for 404")
	}
}
