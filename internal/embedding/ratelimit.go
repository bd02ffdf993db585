package embedding

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited throttles calls to a wrapped Embedder.
type RateLimited struct {
	next    Embedder
	limiter *rate.Limiter
}

// NewRateLimited allows perSecond calls with the given burst. A
// non-positive rate disables limiting.
func NewRateLimited(next Embedder, perSecond float64, burst int) *RateLimited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Embed waits for a token, then delegates.
func (r *RateLimited) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("embedding rate limit: %w", err)
	}
	return r.next.Embed(ctx, texts)
}

// EmbedSingle implements Embedder.
func (r *RateLimited) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return embedOne(ctx, r, text)
}

// Model returns the wrapped model name.
func (r *RateLimited) Model() string {
	return r.next.Model()
}

// Dimension returns the wrapped dimension.
func (r *RateLimited) Dimension() int {
	return r.next.Dimension()
}
