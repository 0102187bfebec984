package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"
)

// mockEmbeddingClient implements EmbeddingClient for testing.
type mockEmbeddingClient struct {
	vectors [][]float32
	err     error
	calls   int
}

func (m *mockEmbeddingClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	// Return vectors matching the batch size
	result := make([][]float32, len(texts))
	for i := range texts {
		if i < len(m.vectors) {
			result[i] = m.vectors[i]
		} else {
			// Generate a dummy 768-dim vector
			vec := make([]float32, 768)
			vec[0] = float32(i + 1)
			vec[1] = 0.5
			result[i] = vec
		}
	}
	return result, nil
}

func TestEmbed_Success(t *testing.T) {
	vec := make([]float32, 768)
	vec[0] = 1.0
	client := &mockEmbeddingClient{vectors: [][]float32{vec}}
	svc := NewEmbedderService(client)

	vectors, err := svc.Embed(context.Background(), []string{"hello world"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(vectors) != 1 {
		t.Fatalf("expected 1 vector, got %d", len(vectors))
	}
	if len(vectors[0]) != 768 {
		t.Errorf("vector dimensions = %d, want 768", len(vectors[0]))
	}
}

func TestEmbed_L2Normalized(t *testing.T) {
	vec := make([]float32, 768)
	vec[0] = 3.0
	vec[1] = 4.0
	client := &mockEmbeddingClient{vectors: [][]float32{vec}}
	svc := NewEmbedderService(client)

	vectors, err := svc.Embed(context.Background(), []string{"test"})
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	// Check L2 norm ≈ 1.0
	var sumSq float64
	for _, v := range vectors[0] {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if math.Abs(norm-1.0) > 0.001 {
		t.Errorf("L2 norm = %f, want ~1.0", norm)
	}
}

func TestEmbed_Batching(t *testing.T) {
	client := &mockEmbeddingClient{}
	svc := NewEmbedderService(client)

	// 300 texts should require 2 API calls (250 + 50)
	texts := make([]string, 300)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	vectors, err := svc.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(vectors) != 300 {
		t.Errorf("expected 300 vectors, got %d", len(vectors))
	}

	if client.calls != 2 {
		t.Errorf("expected 2 API calls (batch of 250 + 50), got %d", client.calls)
	}
}

func TestEmbed_EmptyInput(t *testing.T) {
	client := &mockEmbeddingClient{}
	svc := NewEmbedderService(client)

	_, err := svc.Embed(context.Background(), []string{})
	if err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestEmbed_ClientError(t *testing.T) {
	client := &mockEmbeddingClient{err: fmt.Errorf("API rate limit exceeded")}
	svc := NewEmbedderService(client)

	_, err := svc.Embed(context.Background(), []string{"test"})
	if err == nil {
		t.Fatal("expected error when client fails")
	}
}

func TestEmbed_WrongDimensions(t *testing.T) {
	// Return a 512-dim vector instead of 768
	vec := make([]float32, 512)
	client := &mockEmbeddingClient{vectors: [][]float32{vec}}
	svc := NewEmbedderService(client)

	_, err := svc.Embed(context.Background(), []string{"test"})
	if err == nil {
		t.Fatal("expected error for wrong dimensions")
	}
}

func TestL2Normalize(t *testing.T) {
	vec := []float32{3.0, 4.0, 0, 0, 0}
	result := l2Normalize(vec)

	// Expected: [3/5, 4/5, 0, 0, 0] = [0.6, 0.8, 0, 0, 0]
	if math.Abs(float64(result[0])-0.6) > 0.001 {
		t.Errorf("result[0] = %f, want ~0.6", result[0])
	}
	if math.Abs(float64(result[1])-0.8) > 0.001 {
		t.Errorf("result[1] = %f, want ~0.8", result[1])
	}
}

func TestL2Normalize_ZeroVector(t *testing.T) {
	vec := []float32{0, 0, 0}
	result := l2Normalize(vec)
	// Should return original (no division by zero)
	if result[0] != 0 || result[1] != 0 || result[2] != 0 {
		t.Error("zero vector should remain zero")
	}
}

func TestEmbed_ExactBatchBoundary(t *testing.T) {
	client := &mockEmbeddingClient{}
	svc := NewEmbedderService(client)

	// Exactly 250 texts — should be 1 API call
	texts := make([]string, 250)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	vectors, err := svc.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("Embed() error: %v", err)
	}

	if len(vectors) != 250 {
		t.Errorf("expected 250 vectors, got %d", len(vectors))
	}
	if client.calls != 1 {
		t.Errorf("expected 1 API call for 250 texts, got %d", client.calls)
	}
}

// flakyEmbeddingClient fails whole-batch calls but succeeds on single-text calls.
type flakyEmbeddingClient struct {
	batchCalls  int
	singleCalls int
}

func (f *flakyEmbeddingClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) > 1 {
		f.batchCalls++
		return nil, errors.New("batch embedding unavailable")
	}
	f.singleCalls++
	vec := make([]float32, 768)
	vec[0] = 1
	return [][]float32{vec}, nil
}

func TestEmbedWithRetry_FallsBackToPerChunk(t *testing.T) {
	client := &flakyEmbeddingClient{}
	svc := NewEmbedderService(client)

	vectors, err := svc.EmbedWithRetry(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("EmbedWithRetry() error: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	if client.singleCalls != 3 {
		t.Errorf("expected 3 per-chunk calls, got %d", client.singleCalls)
	}
}

// alwaysFailClient fails every call, to exercise the exhausted-retries path.
type alwaysFailClient struct{ calls int }

func (f *alwaysFailClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	return nil, errors.New("permanently unavailable")
}

func TestEmbedWithRetry_ExhaustsRetries(t *testing.T) {
	client := &alwaysFailClient{}
	svc := NewEmbedderService(client)

	_, err := svc.EmbedWithRetry(context.Background(), []string{"only chunk"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	// 1 batch call + 1 initial single call + 3 backoff retries = 5
	if client.calls != 5 {
		t.Errorf("expected 5 total calls (batch + initial + 3 retries), got %d", client.calls)
	}
}
