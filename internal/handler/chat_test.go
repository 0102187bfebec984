package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/maritime-tutor/backend/internal/service"
)

type fakeTurnHandler struct {
	result      *service.TurnResult
	err         error
	streamEvent []service.StreamEvent

	lastUserID    string
	lastSessionID string
	lastRole      service.PersonaRole
	lastMessage   string
}

func (f *fakeTurnHandler) HandleTurn(ctx context.Context, userID, sessionID string, role service.PersonaRole, message string) (*service.TurnResult, error) {
	f.lastUserID, f.lastSessionID, f.lastRole, f.lastMessage = userID, sessionID, role, message
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeTurnHandler) HandleTurnStream(ctx context.Context, userID, sessionID string, role service.PersonaRole, message string) <-chan service.StreamEvent {
	f.lastUserID, f.lastSessionID, f.lastRole, f.lastMessage = userID, sessionID, role, message
	ch := make(chan service.StreamEvent, len(f.streamEvent))
	for _, ev := range f.streamEvent {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestChat_HappyPath(t *testing.T) {
	fake := &fakeTurnHandler{result: &service.TurnResult{
		Answer:             "A give-way vessel must keep clear.",
		Sources:            []service.Citation{{DocumentID: "d1", PageNumber: 3, NodeIDs: []string{"n1"}, ContentSnippet: "Rule 16", RelevanceScore: 0.9}},
		EvidenceImages:     []string{"https://example.com/page3.png"},
		SuggestedQuestions: []string{"What about rule 17?"},
		Metadata:           service.TurnMetadata{AgentType: "reasoning_agent", ProcessingTimeMs: 42, ToolsUsed: []string{"retrieve"}},
	}}

	body := `{"user_id":"u1","message":"what must a give-way vessel do?","role":"student"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	Chat(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Status string            `json:"status"`
		Data   chatResponseData `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q", resp.Status)
	}
	if resp.Data.Answer != "A give-way vessel must keep clear." {
		t.Errorf("answer = %q", resp.Data.Answer)
	}
	if len(resp.Data.Sources) != 1 || resp.Data.Sources[0].NodeID != "n1" {
		t.Errorf("sources = %+v", resp.Data.Sources)
	}
	if fake.lastUserID != "u1" || fake.lastRole != service.PersonaStudent {
		t.Errorf("handler received userID=%q role=%q", fake.lastUserID, fake.lastRole)
	}
	if fake.lastSessionID == "" {
		t.Error("expected an auto-generated session id")
	}
}

func TestChat_MissingUserID(t *testing.T) {
	body := `{"message":"hello","role":"student"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	Chat(&fakeTurnHandler{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChat_InvalidRole(t *testing.T) {
	body := `{"user_id":"u1","message":"hello","role":"captain"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	Chat(&fakeTurnHandler{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestChat_PreservesProvidedSessionID(t *testing.T) {
	fake := &fakeTurnHandler{result: &service.TurnResult{Answer: "ok"}}
	body := `{"user_id":"u1","message":"hello","role":"student","session_id":"s-existing"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	Chat(fake).ServeHTTP(rec, req)

	if fake.lastSessionID != "s-existing" {
		t.Errorf("sessionID = %q, want s-existing", fake.lastSessionID)
	}
}

func TestChat_OrchestratorError(t *testing.T) {
	fake := &fakeTurnHandler{err: context.DeadlineExceeded}
	body := `{"user_id":"u1","message":"hello","role":"student"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(body))
	rec := httptest.NewRecorder()

	Chat(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestChatStream_EmitsSSEEvents(t *testing.T) {
	meta := &service.TurnMetadata{AgentType: "reasoning_agent", ProcessingTimeMs: 10}
	fake := &fakeTurnHandler{streamEvent: []service.StreamEvent{
		{Type: service.StreamThinking, Text: "plan"},
		{Type: service.StreamAnswer, Text: "Rule 15 covers crossing situations."},
		{Type: service.StreamSources, Sources: []service.Citation{{DocumentID: "d1", PageNumber: 1}}},
		{Type: service.StreamMetadata, Metadata: meta},
		{Type: service.StreamDone},
	}}

	body := `{"user_id":"u1","message":"what is rule 15?","role":"student"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()

	ChatStream(fake).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content-type = %q", ct)
	}

	var eventLines []string
	scanner := bufio.NewScanner(strings.NewReader(rec.Body.String()))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			eventLines = append(eventLines, strings.TrimPrefix(line, "event: "))
		}
	}
	want := []string{"thinking", "answer", "sources", "metadata", "done"}
	if len(eventLines) != len(want) {
		t.Fatalf("events = %v, want %v", eventLines, want)
	}
	for i, w := range want {
		if eventLines[i] != w {
			t.Errorf("event[%d] = %q, want %q", i, eventLines[i], w)
		}
	}
}

func TestChatStream_MissingMessage(t *testing.T) {
	body := `{"user_id":"u1","role":"student"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat/stream", strings.NewReader(body))
	rec := httptest.NewRecorder()

	ChatStream(&fakeTurnHandler{}).ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
