package gcpclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/maritime-tutor/backend/internal/cache"
)

// batchEmbedder is the narrow shape QueryEmbedder needs from EmbeddingAdapter.
type batchEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// QueryEmbedder adapts the batch embedding adapter to the single-query shape
// RetrieverService needs, caching vectors by normalized query hash so a
// repeated or near-repeated question skips the Vertex AI round trip.
type QueryEmbedder struct {
	client batchEmbedder
	cache  *cache.EmbeddingCache
}

// NewQueryEmbedder creates a QueryEmbedder. client may be a bare
// *EmbeddingAdapter or a *RateLimitedEmbedder wrapping one.
func NewQueryEmbedder(client batchEmbedder, c *cache.EmbeddingCache) *QueryEmbedder {
	return &QueryEmbedder{client: client, cache: c}
}

// Embed returns the query's embedding vector, serving from cache when the
// normalized query has been embedded recently.
func (q *QueryEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	hash := hashQuery(text)
	if vec, ok := q.cache.Get(hash); ok {
		return vec, nil
	}

	vectors, err := q.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("gcpclient.QueryEmbedder.Embed: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("gcpclient.QueryEmbedder.Embed: got %d vectors for 1 query", len(vectors))
	}

	q.cache.Set(hash, vectors[0])
	return vectors[0], nil
}

func hashQuery(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
