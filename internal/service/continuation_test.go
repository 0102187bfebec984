package service

import (
	"testing"

	"github.com/maritime-tutor/backend/internal/model"
)

func TestAnalyzeConversation_EmptyWindow(t *testing.T) {
	ctx := AnalyzeConversation(nil, "what about rule 15")
	if ctx.ShouldOfferContinuation {
		t.Error("ShouldOfferContinuation = true, want false for empty window")
	}
}

func TestAnalyzeConversation_IncompleteThenTopicChangeOffersContinuation(t *testing.T) {
	window := []model.ChatMessage{
		{Role: model.RoleUser, Content: "What is Rule 15?"},
		{Role: model.RoleAssistant, Content: "Rule 15 covers crossing situations. The give-way vessel must keep clear..."},
		{Role: model.RoleUser, Content: "What about anchoring in a fairway?"},
	}
	ctx := AnalyzeConversation(window, "What about anchoring in a fairway?")
	if !ctx.ShouldOfferContinuation {
		t.Errorf("ShouldOfferContinuation = false, want true, ctx=%+v", ctx)
	}
	if ctx.LastTopic == "" {
		t.Error("expected a non-empty last topic")
	}
}

func TestAnalyzeConversation_ContinuationRequestDoesNotInterrupt(t *testing.T) {
	window := []model.ChatMessage{
		{Role: model.RoleUser, Content: "Explain Rule 15"},
		{Role: model.RoleAssistant, Content: "Rule 15 covers crossing situations. The give-way vessel must keep clear..."},
		{Role: model.RoleUser, Content: "vậy thì tiếp tục đi"},
	}
	ctx := AnalyzeConversation(window, "vậy thì tiếp tục đi")
	if ctx.ShouldOfferContinuation {
		t.Errorf("ShouldOfferContinuation = true, want false when user explicitly asks to continue, ctx=%+v", ctx)
	}
}

func TestAnalyzeConversation_CompleteExplanationNoHint(t *testing.T) {
	window := []model.ChatMessage{
		{Role: model.RoleUser, Content: "What is Rule 15?"},
		{Role: model.RoleAssistant, Content: "Rule 15 covers crossing situations: the vessel with the other on her own starboard side shall keep out of the way."},
		{Role: model.RoleUser, Content: "What about anchoring?"},
	}
	ctx := AnalyzeConversation(window, "What about anchoring?")
	if ctx.ShouldOfferContinuation {
		t.Errorf("ShouldOfferContinuation = true, want false for a complete explanation, ctx=%+v", ctx)
	}
}

func TestExtractMaritimeTopic_VietnameseRuleReference(t *testing.T) {
	topic := extractMaritimeTopic("Quy tắc 15 quy định về tình huống cắt hướng.")
	if topic != "Quy tắc 15" {
		t.Errorf("topic = %q, want %q", topic, "Quy tắc 15")
	}
}

func TestBuildContinuationHint_EmptyWhenNotOffered(t *testing.T) {
	if hint := BuildContinuationHint(ConversationContext{}); hint != "" {
		t.Errorf("hint = %q, want empty", hint)
	}
}

func TestBuildContinuationHint_NamesTopic(t *testing.T) {
	hint := BuildContinuationHint(ConversationContext{LastTopic: "Rule 15", ShouldOfferContinuation: true})
	if hint == "" {
		t.Fatal("expected non-empty hint")
	}
}
