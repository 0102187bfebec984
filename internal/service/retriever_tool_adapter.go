package service

import (
	"context"

	"github.com/maritime-tutor/backend/internal/tools"
)

// RetrieverToolAdapter exposes a RetrieverService through tools.Retriever,
// translating the tool catalog's narrow request/response shape into a full
// Search call and its citation-bearing SearchResult.
type RetrieverToolAdapter struct {
	retriever *RetrieverService
}

// NewRetrieverToolAdapter wraps a RetrieverService for use in the tool catalog.
func NewRetrieverToolAdapter(retriever *RetrieverService) *RetrieverToolAdapter {
	return &RetrieverToolAdapter{retriever: retriever}
}

func (a *RetrieverToolAdapter) Search(ctx context.Context, queryText string, k int, filters tools.RetrieveFilters) (*tools.RetrieveOutcome, error) {
	result, err := a.retriever.Search(ctx, queryText, k, RetrieveFilters{DocumentID: filters.DocumentID})
	if err != nil {
		return nil, err
	}

	snippets := make([]tools.RetrieveSnippet, 0, len(result.Citations))
	for _, c := range result.Citations {
		snippets = append(snippets, tools.RetrieveSnippet{
			DocumentID: c.DocumentID,
			PageNumber: c.PageNumber,
			Content:    c.ContentSnippet,
			Score:      c.RelevanceScore,
		})
	}

	return &tools.RetrieveOutcome{Snippets: snippets}, nil
}
