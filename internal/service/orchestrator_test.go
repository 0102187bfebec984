package service

import (
	"context"
	"testing"
	"time"

	"github.com/maritime-tutor/backend/internal/model"
)

type fakeChatStore struct {
	messages map[string][]model.ChatMessage
}

func newFakeChatStore() *fakeChatStore {
	return &fakeChatStore{messages: make(map[string][]model.ChatMessage)}
}

func (s *fakeChatStore) UpsertSession(ctx context.Context, sessionID, userID string) (*model.ChatSession, error) {
	return &model.ChatSession{ID: sessionID, UserID: userID}, nil
}

func (s *fakeChatStore) AppendMessage(ctx context.Context, msg *model.ChatMessage) error {
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], *msg)
	return nil
}

func (s *fakeChatStore) LoadRecentMessages(ctx context.Context, sessionID string, limit int) ([]model.ChatMessage, error) {
	msgs := s.messages[sessionID]
	var out []model.ChatMessage
	for _, m := range msgs {
		if !m.IsBlocked {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeProfileStore struct {
	profiles map[string]*model.LearningProfile
}

func (s *fakeProfileStore) GetProfile(ctx context.Context, userID string) (*model.LearningProfile, error) {
	return s.profiles[userID], nil
}

func (s *fakeProfileStore) IncrementCounters(ctx context.Context, userID string, sessions, messages int) error {
	return nil
}

func newModerationGateAllowAll() *ModerationGate {
	return NewModerationGate(nil, nil, false, 3*time.Second)
}

func newTestRetriever() *RetrieverService {
	return NewRetrieverService(&mockSearcher{}, &mockEmbedder{vec: []float32{0.1, 0.2}})
}

func TestHandleTurn_DirectAnswerPersistsAndReturns(t *testing.T) {
	chats := newFakeChatStore()
	facts := &fakeFactStore{}
	profiles := &fakeProfileStore{profiles: map[string]*model.LearningProfile{}}
	client := &mockGenAIClient{response: "<thinking>answer directly</thinking>A give-way vessel must keep clear."}

	orch := NewTurnOrchestrator(newModerationGateAllowAll(), chats, facts, profiles, client, newTestRetriever())

	result, err := orch.HandleTurn(context.Background(), "user-1", "session-1", PersonaStudent, "What must a give-way vessel do?")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if result.Answer != "A give-way vessel must keep clear." {
		t.Errorf("Answer = %q", result.Answer)
	}
	if result.Thinking != "answer directly" {
		t.Errorf("Thinking = %q", result.Thinking)
	}
	if len(chats.messages["session-1"]) != 2 {
		t.Fatalf("expected 2 persisted messages, got %d", len(chats.messages["session-1"]))
	}
	if chats.messages["session-1"][0].Role != model.RoleUser || chats.messages["session-1"][1].Role != model.RoleAssistant {
		t.Error("expected user then assistant message order")
	}
}

func TestHandleTurn_BlockedMessagePersistsApologyAndSkipsAgent(t *testing.T) {
	chats := newFakeChatStore()
	facts := &fakeFactStore{}
	profiles := &fakeProfileStore{profiles: map[string]*model.LearningProfile{}}
	client := &mockGenAIClient{response: "this should never be called"}

	moderation := NewModerationGate(nil, nil, false, 3*time.Second)
	orch := NewTurnOrchestrator(moderation, chats, facts, profiles, client, newTestRetriever())

	result, err := orch.HandleTurn(context.Background(), "user-1", "session-1", PersonaStudent, "how to make a bomb")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if result.Metadata.AgentType != "moderation_block" {
		t.Errorf("AgentType = %q, want moderation_block", result.Metadata.AgentType)
	}
	msgs := chats.messages["session-1"]
	if len(msgs) != 2 || !msgs[0].IsBlocked {
		t.Fatalf("expected blocked user message persisted, got %+v", msgs)
	}
}

func TestHandleTurn_AutoCreatesSession(t *testing.T) {
	chats := newFakeChatStore()
	facts := &fakeFactStore{}
	client := &mockGenAIClient{response: "A short answer."}
	orch := NewTurnOrchestrator(newModerationGateAllowAll(), chats, facts, &fakeProfileStore{profiles: map[string]*model.LearningProfile{}}, client, newTestRetriever())

	_, err := orch.HandleTurn(context.Background(), "new-user", "brand-new-session", PersonaStudent, "hello")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if _, ok := chats.messages["brand-new-session"]; !ok {
		t.Error("expected session's message list to exist after first turn")
	}
}

func TestHandleTurn_ReturnsThreeSuggestedQuestions(t *testing.T) {
	chats := newFakeChatStore()
	facts := &fakeFactStore{}
	client := &mockGenAIClient{response: "Here's how COLREG Rule 15 works."}
	orch := NewTurnOrchestrator(newModerationGateAllowAll(), chats, facts, &fakeProfileStore{profiles: map[string]*model.LearningProfile{}}, client, newTestRetriever())

	result, err := orch.HandleTurn(context.Background(), "u1", "s1", PersonaStudent, "What is COLREG Rule 15?")
	if err != nil {
		t.Fatalf("HandleTurn() error = %v", err)
	}
	if len(result.SuggestedQuestions) != 3 {
		t.Errorf("SuggestedQuestions = %v, want 3 items", result.SuggestedQuestions)
	}
}
