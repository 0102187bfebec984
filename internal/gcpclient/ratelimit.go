package gcpclient

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimitedGenAI wraps a GenAIAdapter with a token-bucket limiter so a
// burst of concurrent turns can't exceed the Vertex AI quota configured for
// this deployment. It composes with the adapter's own retry logic:
// the limiter only decides when a call may start, never whether it succeeds.
type RateLimitedGenAI struct {
	inner   *GenAIAdapter
	limiter *rate.Limiter
}

// NewRateLimitedGenAI wraps inner with a limiter allowing burst requests
// immediately and refilling at rps requests/second thereafter.
func NewRateLimitedGenAI(inner *GenAIAdapter, rps float64, burst int) *RateLimitedGenAI {
	return &RateLimitedGenAI{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (g *RateLimitedGenAI) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.inner.GenerateContent(ctx, systemPrompt, userPrompt)
}

func (g *RateLimitedGenAI) GenerateContentVision(ctx context.Context, systemPrompt, userPrompt string, imagePNG []byte) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return g.inner.GenerateContentVision(ctx, systemPrompt, userPrompt, imagePNG)
}

func (g *RateLimitedGenAI) GenerateContentStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan string, <-chan error) {
	if err := g.limiter.Wait(ctx); err != nil {
		errCh := make(chan error, 1)
		errCh <- err
		close(errCh)
		textCh := make(chan string)
		close(textCh)
		return textCh, errCh
	}
	return g.inner.GenerateContentStream(ctx, systemPrompt, userPrompt)
}

func (g *RateLimitedGenAI) HealthCheck(ctx context.Context) error {
	return g.inner.HealthCheck(ctx)
}

func (g *RateLimitedGenAI) Close() {
	g.inner.Close()
}

// RateLimitedEmbedder wraps an EmbeddingAdapter with a token-bucket limiter,
// same rationale as RateLimitedGenAI: bulk ingestion runs can issue hundreds
// of batched embedding calls back to back and must not outrun Vertex AI's
// per-project embedding quota.
type RateLimitedEmbedder struct {
	inner   *EmbeddingAdapter
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner the same way NewRateLimitedGenAI does.
func NewRateLimitedEmbedder(inner *EmbeddingAdapter, rps float64, burst int) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{inner: inner, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

func (e *RateLimitedEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.EmbedTexts(ctx, texts)
}

func (e *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return e.inner.Embed(ctx, texts)
}

func (e *RateLimitedEmbedder) HealthCheck(ctx context.Context) error {
	return e.inner.HealthCheck(ctx)
}
