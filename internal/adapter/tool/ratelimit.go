package tool

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/time/rate"

	"devspace/internal/domain"
)

// RateLimitedTool wraps a Tool with a token bucket. Calls over the limit fail
// immediately with domain.ErrRateLimit rather than queueing.
type RateLimitedTool struct {
	inner   domain.Tool
	limiter *rate.Limiter
}

// WithRateLimit wraps t so that at most perSecond calls are admitted per
// second with the given burst. A non-positive rate returns t unchanged.
func WithRateLimit(t domain.Tool, perSecond float64, burst int) domain.Tool {
	if perSecond <= 0 {
		return t
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimitedTool{inner: t, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimitedTool) Name() string              { return r.inner.Name() }
func (r *RateLimitedTool) Description() string       { return r.inner.Description() }
func (r *RateLimitedTool) Schema() domain.ToolSchema { return r.inner.Schema() }

func (r *RateLimitedTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	if !r.limiter.Allow() {
		return nil, fmt.Errorf("tool %q: %w", r.Name(), domain.ErrRateLimit)
	}
	return r.inner.Execute(ctx, params)
}

// Unwrap returns the wrapped tool.
func (r *RateLimitedTool) Unwrap() domain.Tool { return r.inner }
