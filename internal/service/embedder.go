package service

import (
	"context"
	"fmt"
	"math"
	"time"
)

// embedRetryDelays is the backoff schedule applied to a chunk whose
// embedding failed as part of a batch: retried individually up to three
// times before being reported as a failed page.
var embedRetryDelays = []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second}

const (
	// maxBatchSize is the max texts per Vertex AI embedding API call.
	maxBatchSize = 250
	// embeddingDimensions is the expected vector dimensionality.
	embeddingDimensions = 768
)

// EmbeddingClient abstracts the Vertex AI embedding API for testability.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedderService generates vector embeddings for chunk text.
type EmbedderService struct {
	client EmbeddingClient
}

// NewEmbedderService creates an EmbedderService.
func NewEmbedderService(client EmbeddingClient) *EmbedderService {
	return &EmbedderService{client: client}
}

// Embed generates embeddings for a slice of texts, batching as needed.
// Returns one 768-dim L2-normalized vector per input text.
func (s *EmbedderService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("service.Embed: no texts provided")
	}

	allVectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		vectors, err := s.client.EmbedTexts(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("service.Embed: batch %d-%d: %w", i, end, err)
		}

		// Validate dimensions and L2-normalize
		for j, vec := range vectors {
			if len(vec) != embeddingDimensions {
				return nil, fmt.Errorf("service.Embed: vector %d has %d dimensions, want %d", i+j, len(vec), embeddingDimensions)
			}
			vectors[j] = l2Normalize(vec)
		}

		allVectors = append(allVectors, vectors...)
	}

	if len(allVectors) != len(texts) {
		return nil, fmt.Errorf("service.Embed: got %d vectors for %d texts", len(allVectors), len(texts))
	}

	return allVectors, nil
}

// EmbedWithRetry embeds texts as one batch, and on batch failure falls back
// to embedding each text individually with exponential backoff so a single
// bad chunk doesn't sink its whole page.
func (s *EmbedderService) EmbedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	vectors, err := s.Embed(ctx, texts)
	if err == nil {
		return vectors, nil
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, ferr := s.embedOneWithBackoff(ctx, text)
		if ferr != nil {
			return nil, fmt.Errorf("service.EmbedWithRetry: chunk %d: %w", i, ferr)
		}
		out[i] = vec
	}
	return out, nil
}

func (s *EmbedderService) embedOneWithBackoff(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= len(embedRetryDelays); attempt++ {
		vectors, err := s.Embed(ctx, []string{text})
		if err == nil && len(vectors) == 1 {
			return vectors[0], nil
		}
		lastErr = err
		if attempt < len(embedRetryDelays) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(embedRetryDelays[attempt]):
			}
		}
	}
	return nil, lastErr
}

// l2Normalize normalizes a vector to unit length (L2 norm = 1).
func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}

	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}
	return result
}
