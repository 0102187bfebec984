package tools

import (
	"context"
	"fmt"
)

// Retriever abstracts the hybrid retriever for the retrieve tool.
type Retriever interface {
	Search(ctx context.Context, queryText string, k int, filters RetrieveFilters) (*RetrieveOutcome, error)
}

// RetrieveFilters mirrors service.RetrieveFilters without importing the
// service package (keeps tools a leaf package with no upward dependency).
type RetrieveFilters struct {
	DocumentID string
}

// RetrieveOutcome mirrors the parts of service.SearchResult the retrieve
// tool exposes to the model.
type RetrieveOutcome struct {
	Snippets []RetrieveSnippet
}

// RetrieveSnippet is one citation surfaced to the model as tool output.
type RetrieveSnippet struct {
	DocumentID string
	PageNumber int
	Content    string
	Score      float64
}

// RetrieveTool implements the "retrieve" tool: hybrid search over the
// regulatory corpus, scoped to the turn's retrieval collector so sources
// and evidence images surface in the final response regardless of whether
// the model quotes them verbatim.
type RetrieveTool struct {
	retriever Retriever
	collector *TurnCollector
}

// NewRetrieveTool creates a RetrieveTool bound to a turn-scoped collector.
func NewRetrieveTool(retriever Retriever, collector *TurnCollector) *RetrieveTool {
	return &RetrieveTool{retriever: retriever, collector: collector}
}

func (t *RetrieveTool) Execute(ctx context.Context, params map[string]interface{}) (*ToolResult, error) {
	query, _ := params["query"].(string)
	if query == "" {
		return nil, NewValidationError("retrieve", "query is required")
	}
	k := 8
	if kv, ok := params["k"].(float64); ok && kv > 0 {
		k = int(kv)
	}

	outcome, err := t.retriever.Search(ctx, query, k, RetrieveFilters{})
	if err != nil {
		return nil, NewUpstreamError("retrieve", err)
	}

	if t.collector != nil {
		t.collector.Record(outcome)
	}

	summary := make([]map[string]interface{}, 0, len(outcome.Snippets))
	for _, s := range outcome.Snippets {
		summary = append(summary, map[string]interface{}{
			"documentId": s.DocumentID,
			"page":       s.PageNumber,
			"content":    s.Content,
			"score":      s.Score,
		})
	}

	return &ToolResult{Data: map[string]interface{}{"results": summary}}, nil
}

// TurnCollector accumulates retrieval outcomes across every retrieve call
// within a single turn, so the orchestrator can assemble sources/evidence
// images from the whole turn rather than just the model's last tool call.
type TurnCollector struct {
	outcomes []*RetrieveOutcome
}

// NewTurnCollector creates an empty, turn-scoped collector.
func NewTurnCollector() *TurnCollector {
	return &TurnCollector{}
}

// Record appends one retrieval outcome to the collector.
func (c *TurnCollector) Record(outcome *RetrieveOutcome) {
	if outcome == nil {
		return
	}
	c.outcomes = append(c.outcomes, outcome)
}

// Snippets flattens every recorded outcome's snippets, in call order.
func (c *TurnCollector) Snippets() []RetrieveSnippet {
	var all []RetrieveSnippet
	for _, o := range c.outcomes {
		all = append(all, o.Snippets...)
	}
	return all
}

func (c *TurnCollector) String() string {
	return fmt.Sprintf("TurnCollector(%d retrievals)", len(c.outcomes))
}
