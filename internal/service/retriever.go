package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/maritime-tutor/backend/internal/model"
	"github.com/maritime-tutor/backend/internal/repository"
)

const (
	defaultTopK       = 8
	defaultDenseAlpha = 0.6
	maxEvidenceImages = 5
)

// ChunkSearcher abstracts the persistence layer's hybrid search primitive.
type ChunkSearcher interface {
	HybridSearch(ctx context.Context, queryText string, queryEmbedding []float32, k, denseCandidates, lexicalCandidates int, alpha float64, filter repository.ChunkFilter) ([]repository.ScoredChunk, error)
}

// QueryEmbedder abstracts the embedding model used to embed retrieval queries.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetrieveFilters narrows a retrieval call. ScoreThreshold of 0 disables filtering.
type RetrieveFilters struct {
	DocumentID     string
	ContentType    model.ContentType
	ScoreThreshold float64
}

// Citation groups retrieved chunks from the same (document_id, page_number)
// into one piece of evidence.
type Citation struct {
	DocumentID     string              `json:"documentId"`
	PageNumber     int                 `json:"pageNumber"`
	NodeIDs        []string            `json:"nodeIds"`
	ContentSnippet string              `json:"contentSnippet"`
	ImageURL       *string             `json:"imageUrl,omitempty"`
	BoundingBoxes  []model.BoundingBox `json:"boundingBoxes,omitempty"`
	RelevanceScore float64             `json:"relevanceScore"`
}

// SearchResult is the output of a retrieval call.
type SearchResult struct {
	Hits           []repository.ScoredChunk
	Citations      []Citation
	EvidenceImages []string
}

// RetrieverService implements the hybrid retriever: raw hybrid search plus
// citation assembly and evidence-image deduplication over its hits.
type RetrieverService struct {
	searcher ChunkSearcher
	embedder QueryEmbedder

	topK              int
	denseWeight       float64
	denseCandidates   int
	lexicalCandidates int
}

// NewRetrieverService creates a RetrieverService with the default knobs
// (topK=8, alpha=0.6, candidate pools = 4*topK).
func NewRetrieverService(searcher ChunkSearcher, embedder QueryEmbedder) *RetrieverService {
	return &RetrieverService{
		searcher:          searcher,
		embedder:          embedder,
		topK:              defaultTopK,
		denseWeight:       defaultDenseAlpha,
		denseCandidates:   defaultTopK * 4,
		lexicalCandidates: defaultTopK * 4,
	}
}

// Configure overrides the defaults from loaded configuration.
func (s *RetrieverService) Configure(topK int, denseWeight float64) {
	if topK > 0 {
		s.topK = topK
		s.denseCandidates = topK * 4
		s.lexicalCandidates = topK * 4
	}
	if denseWeight > 0 {
		s.denseWeight = denseWeight
	}
}

// Search embeds the query, runs hybrid search, and assembles citations and
// evidence images from the resulting hits.
func (s *RetrieverService) Search(ctx context.Context, queryText string, k int, filters RetrieveFilters) (*SearchResult, error) {
	if strings.TrimSpace(queryText) == "" {
		return nil, fmt.Errorf("service.Retriever.Search: query is empty")
	}
	if k <= 0 {
		k = s.topK
	}

	embedding, err := s.embedder.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("service.Retriever.Search: embed: %w", err)
	}

	slog.Debug("[DEBUG-RETRIEVER] query embedded", "query_len", len(queryText), "vec_dim", len(embedding))

	repoFilter := repository.ChunkFilter{DocumentID: filters.DocumentID, ContentType: filters.ContentType}
	hits, err := s.searcher.HybridSearch(ctx, queryText, embedding, k, s.denseCandidates, s.lexicalCandidates, s.denseWeight, repoFilter)
	if err != nil {
		return nil, fmt.Errorf("service.Retriever.Search: %w", err)
	}

	if filters.ScoreThreshold > 0 {
		filtered := hits[:0]
		for _, h := range hits {
			if h.FusedScore >= filters.ScoreThreshold {
				filtered = append(filtered, h)
			}
		}
		hits = filtered
	}

	citations := assembleCitations(hits)
	evidence := evidenceImages(citations)

	slog.Debug("[DEBUG-RETRIEVER] search complete", "hits", len(hits), "citations", len(citations), "evidence_images", len(evidence))

	return &SearchResult{Hits: hits, Citations: citations, EvidenceImages: evidence}, nil
}

// assembleCitations groups hits by (document_id, page_number): content_snippet
// is the chunk-index-ordered concatenation of member text (non-adjacent runs
// joined with " … "); bounding_boxes concatenate in the same order; image_url
// comes from any member; relevance_score is the max fused score among members.
func assembleCitations(hits []repository.ScoredChunk) []Citation {
	type group struct {
		docID   string
		page    int
		members []repository.ScoredChunk
	}

	groups := map[string]*group{}
	var order []string
	for _, h := range hits {
		key := fmt.Sprintf("%s|%d", h.Chunk.DocumentID, h.Chunk.PageNumber)
		g, ok := groups[key]
		if !ok {
			g = &group{docID: h.Chunk.DocumentID, page: h.Chunk.PageNumber}
			groups[key] = g
			order = append(order, key)
		}
		g.members = append(g.members, h)
	}

	citations := make([]Citation, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		sort.Slice(g.members, func(i, j int) bool {
			return g.members[i].Chunk.ChunkIndex < g.members[j].Chunk.ChunkIndex
		})

		var snippetParts []string
		var boxes []model.BoundingBox
		var imageURL *string
		var nodeIDs []string
		maxScore := 0.0
		prevIndex := -1

		for _, m := range g.members {
			if prevIndex >= 0 && m.Chunk.ChunkIndex != prevIndex+1 {
				snippetParts = append(snippetParts, "…")
			}
			snippetParts = append(snippetParts, strings.TrimSpace(m.Chunk.Content))
			prevIndex = m.Chunk.ChunkIndex

			boxes = append(boxes, m.Chunk.BoundingBoxes...)
			nodeIDs = append(nodeIDs, m.Chunk.ID)
			if imageURL == nil && m.Chunk.ImageURL != nil {
				imageURL = m.Chunk.ImageURL
			}
			if m.FusedScore > maxScore {
				maxScore = m.FusedScore
			}
		}

		citations = append(citations, Citation{
			DocumentID:     g.docID,
			PageNumber:     g.page,
			NodeIDs:        nodeIDs,
			ContentSnippet: strings.Join(snippetParts, " "),
			ImageURL:       imageURL,
			BoundingBoxes:  boxes,
			RelevanceScore: maxScore,
		})
	}

	sort.Slice(citations, func(i, j int) bool {
		if citations[i].RelevanceScore != citations[j].RelevanceScore {
			return citations[i].RelevanceScore > citations[j].RelevanceScore
		}
		if citations[i].DocumentID != citations[j].DocumentID {
			return citations[i].DocumentID < citations[j].DocumentID
		}
		return citations[i].PageNumber < citations[j].PageNumber
	})

	return citations
}

// evidenceImages returns the deduplicated list of image URLs across
// citations, preserving citation order, capped at maxEvidenceImages.
func evidenceImages(citations []Citation) []string {
	seen := map[string]bool{}
	var images []string
	for _, c := range citations {
		if c.ImageURL == nil || seen[*c.ImageURL] {
			continue
		}
		seen[*c.ImageURL] = true
		images = append(images, *c.ImageURL)
		if len(images) >= maxEvidenceImages {
			break
		}
	}
	return images
}
