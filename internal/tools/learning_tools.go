package tools

import (
	"context"
	"fmt"

	"github.com/maritime-tutor/backend/internal/model"
)

// ScheduleReviewTool implements "schedule_review": records a topic the
// student wants revisited in a future session, as a list-valued fact.
type ScheduleReviewTool struct {
	store  FactStore
	userID string
}

// NewScheduleReviewTool creates a ScheduleReviewTool scoped to one user's turn.
func NewScheduleReviewTool(store FactStore, userID string) *ScheduleReviewTool {
	return &ScheduleReviewTool{store: store, userID: userID}
}

func (t *ScheduleReviewTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	topic, _ := params["topic"].(string)
	if topic == "" {
		return nil, NewValidationError("schedule_review", "topic is required")
	}

	content := fmt.Sprintf("review requested: %s", topic)
	if err := t.store.InsertFact(ctx, t.userID, model.FactTopicPreference, content); err != nil {
		return nil, NewUpstreamError("schedule_review", err)
	}
	if err := t.store.EvictOldestIfOverCap(ctx, t.userID, memoryCap); err != nil {
		return nil, NewUpstreamError("schedule_review", err)
	}
	return &ToolResult{Data: map[string]interface{}{"scheduled": topic}}, nil
}

// SelfAssessTool implements "self_assess": records the student's own
// confidence rating on a topic, which the misconception-aware tutoring
// prompt can read back on a later turn.
type SelfAssessTool struct {
	store  FactStore
	userID string
}

// NewSelfAssessTool creates a SelfAssessTool scoped to one user's turn.
func NewSelfAssessTool(store FactStore, userID string) *SelfAssessTool {
	return &SelfAssessTool{store: store, userID: userID}
}

func (t *SelfAssessTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	topic, _ := params["topic"].(string)
	confidence, _ := params["confidence"].(string)
	if topic == "" || confidence == "" {
		return nil, NewValidationError("self_assess", "topic and confidence are both required")
	}

	content := fmt.Sprintf("self-assessed %q confidence on: %s", confidence, topic)
	if err := t.store.InsertFact(ctx, t.userID, model.FactSelfAssessment, content); err != nil {
		return nil, NewUpstreamError("self_assess", err)
	}
	if err := t.store.EvictOldestIfOverCap(ctx, t.userID, memoryCap); err != nil {
		return nil, NewUpstreamError("self_assess", err)
	}
	return &ToolResult{Data: map[string]interface{}{"recorded": true}}, nil
}
