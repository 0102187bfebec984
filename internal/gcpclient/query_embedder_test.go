package gcpclient

import (
	"context"
	"testing"
	"time"

	"github.com/maritime-tutor/backend/internal/cache"
)

type fakeBatchEmbedder struct {
	calls int
	vec   []float32
}

func (f *fakeBatchEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	return [][]float32{f.vec}, nil
}

func TestQueryEmbedder_CachesByNormalizedQuery(t *testing.T) {
	client := &fakeBatchEmbedder{vec: []float32{1, 2, 3}}
	q := &QueryEmbedder{client: client, cache: cache.NewEmbeddingCache(time.Minute)}

	v1, err := q.Embed(context.Background(), "  What is Rule 15?  ")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	v2, err := q.Embed(context.Background(), "what is rule 15?")
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if client.calls != 1 {
		t.Errorf("expected 1 upstream call for equivalent normalized queries, got %d", client.calls)
	}
	if len(v1) != 3 || v1[0] != v2[0] {
		t.Errorf("cached vector mismatch: %v vs %v", v1, v2)
	}
}

func TestQueryEmbedder_DistinctQueriesEachCallUpstream(t *testing.T) {
	client := &fakeBatchEmbedder{vec: []float32{1, 2, 3}}
	q := &QueryEmbedder{client: client, cache: cache.NewEmbeddingCache(time.Minute)}

	if _, err := q.Embed(context.Background(), "Rule 15"); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}
	if _, err := q.Embed(context.Background(), "Rule 16"); err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if client.calls != 2 {
		t.Errorf("expected 2 upstream calls for distinct queries, got %d", client.calls)
	}
}
