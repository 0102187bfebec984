package tools

import (
	"context"
	"fmt"

	"github.com/maritime-tutor/backend/internal/model"
)

// FactStore abstracts the memory-fact persistence the memory tools mutate.
type FactStore interface {
	ListFacts(ctx context.Context, userID string, limit int) ([]model.MemoryFact, error)
	UpsertSingletonFact(ctx context.Context, userID string, factType model.FactType, content string) error
	InsertFact(ctx context.Context, userID string, factType model.FactType, content string) error
	DeleteFactsByType(ctx context.Context, userID string, factType model.FactType) error
	ClearAll(ctx context.Context, userID string) error
	EvictOldestIfOverCap(ctx context.Context, userID string, cap int) error
}

// memoryCap is the per-user fact cap enforced after every write.
const memoryCap = model.MemoryFactCap

// SaveUserInfoTool implements "save_user_info": writes a singleton fact
// (e.g. preferred name, learning style) keyed by a fixed fact type.
type SaveUserInfoTool struct {
	store  FactStore
	userID string
}

// NewSaveUserInfoTool creates a SaveUserInfoTool scoped to one user's turn.
func NewSaveUserInfoTool(store FactStore, userID string) *SaveUserInfoTool {
	return &SaveUserInfoTool{store: store, userID: userID}
}

func (t *SaveUserInfoTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	key, _ := params["key"].(string)
	value, _ := params["value"].(string)
	if key == "" || value == "" {
		return nil, NewValidationError("save_user_info", "key and value are both required")
	}
	factType := model.FactType(key)
	if !model.SingletonFactTypes[factType] {
		return nil, NewValidationError("save_user_info", fmt.Sprintf("%q is not a recognized singleton fact type", key))
	}

	if err := t.store.UpsertSingletonFact(ctx, t.userID, factType, value); err != nil {
		return nil, NewUpstreamError("save_user_info", err)
	}
	if err := t.store.EvictOldestIfOverCap(ctx, t.userID, memoryCap); err != nil {
		return nil, NewUpstreamError("save_user_info", err)
	}
	return &ToolResult{Data: map[string]interface{}{"saved": key}}, nil
}

// GetUserInfoTool implements "get_user_info": reads back a singleton fact,
// or every fact if no key is given.
type GetUserInfoTool struct {
	store  FactStore
	userID string
}

// NewGetUserInfoTool creates a GetUserInfoTool scoped to one user's turn.
func NewGetUserInfoTool(store FactStore, userID string) *GetUserInfoTool {
	return &GetUserInfoTool{store: store, userID: userID}
}

func (t *GetUserInfoTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	key, _ := params["key"].(string)

	facts, err := t.store.ListFacts(ctx, t.userID, memoryCap)
	if err != nil {
		return nil, NewUpstreamError("get_user_info", err)
	}
	if key == "" {
		return &ToolResult{Data: map[string]interface{}{"facts": factSummaries(facts)}}, nil
	}

	for _, f := range facts {
		if string(f.FactType) == key {
			return &ToolResult{Data: map[string]interface{}{"key": key, "value": f.Content}}, nil
		}
	}
	return &ToolResult{Data: map[string]interface{}{"key": key, "value": nil}}, nil
}

// RememberTool implements "remember": appends a list-valued fact
// (goal, misconception, topic preference) unless an identical one exists.
type RememberTool struct {
	store  FactStore
	userID string
}

// NewRememberTool creates a RememberTool scoped to one user's turn.
func NewRememberTool(store FactStore, userID string) *RememberTool {
	return &RememberTool{store: store, userID: userID}
}

func (t *RememberTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	fact, _ := params["fact"].(string)
	if fact == "" {
		return nil, NewValidationError("remember", "fact is required")
	}
	factType := model.FactType("general_note")
	if ft, ok := params["type"].(string); ok && ft != "" {
		factType = model.FactType(ft)
	}

	existing, err := t.store.ListFacts(ctx, t.userID, memoryCap)
	if err != nil {
		return nil, NewUpstreamError("remember", err)
	}
	for _, f := range existing {
		if f.FactType == factType && f.Content == fact {
			return &ToolResult{Data: map[string]interface{}{"remembered": false, "reason": "duplicate"}}, nil
		}
	}

	if model.SingletonFactTypes[factType] {
		err = t.store.UpsertSingletonFact(ctx, t.userID, factType, fact)
	} else {
		err = t.store.InsertFact(ctx, t.userID, factType, fact)
	}
	if err != nil {
		return nil, NewUpstreamError("remember", err)
	}
	if err := t.store.EvictOldestIfOverCap(ctx, t.userID, memoryCap); err != nil {
		return nil, NewUpstreamError("remember", err)
	}
	return &ToolResult{Data: map[string]interface{}{"remembered": true}}, nil
}

// ForgetTool implements "forget": removes every fact of a given type.
type ForgetTool struct {
	store  FactStore
	userID string
}

// NewForgetTool creates a ForgetTool scoped to one user's turn.
func NewForgetTool(store FactStore, userID string) *ForgetTool {
	return &ForgetTool{store: store, userID: userID}
}

func (t *ForgetTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	factType, _ := params["type"].(string)
	if factType == "" {
		return nil, NewValidationError("forget", "type is required")
	}
	if err := t.store.DeleteFactsByType(ctx, t.userID, model.FactType(factType)); err != nil {
		return nil, NewUpstreamError("forget", err)
	}
	return &ToolResult{Data: map[string]interface{}{"forgot": factType}}, nil
}

// ListMemoriesTool implements "list_memories": lists every stored fact.
type ListMemoriesTool struct {
	store  FactStore
	userID string
}

// NewListMemoriesTool creates a ListMemoriesTool scoped to one user's turn.
func NewListMemoriesTool(store FactStore, userID string) *ListMemoriesTool {
	return &ListMemoriesTool{store: store, userID: userID}
}

func (t *ListMemoriesTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	facts, err := t.store.ListFacts(ctx, t.userID, memoryCap)
	if err != nil {
		return nil, NewUpstreamError("list_memories", err)
	}
	return &ToolResult{Data: map[string]interface{}{"facts": factSummaries(facts)}}, nil
}

// ClearAllMemoriesTool implements "clear_all_memories": wipes every stored
// fact for the user, a fully user-controlled, irreversible action.
type ClearAllMemoriesTool struct {
	store  FactStore
	userID string
}

// NewClearAllMemoriesTool creates a ClearAllMemoriesTool scoped to one user's turn.
func NewClearAllMemoriesTool(store FactStore, userID string) *ClearAllMemoriesTool {
	return &ClearAllMemoriesTool{store: store, userID: userID}
}

func (t *ClearAllMemoriesTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	if err := t.store.ClearAll(ctx, t.userID); err != nil {
		return nil, NewUpstreamError("clear_all_memories", err)
	}
	return &ToolResult{Data: map[string]interface{}{"cleared": true}}, nil
}

func factSummaries(facts []model.MemoryFact) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(facts))
	for _, f := range facts {
		out = append(out, map[string]interface{}{
			"type":    string(f.FactType),
			"content": f.Content,
		})
	}
	return out
}
