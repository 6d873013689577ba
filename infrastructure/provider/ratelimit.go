package provider

import (
	"context"
	"fmt"

	"github.com/helixml/taxon/domain/search"
	"github.com/helixml/taxon/domain/service"
	"golang.org/x/time/rate"
)

// NewLimiter returns a token bucket allowing perSecond calls with the given
// burst. A non-positive rate disables pacing.
func NewLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// RateLimitedGenerator paces calls to a Generator.
type RateLimitedGenerator struct {
	inner   service.Generator
	limiter *rate.Limiter
}

// NewRateLimitedGenerator wraps inner with limiter.
func NewRateLimitedGenerator(inner service.Generator, limiter *rate.Limiter) *RateLimitedGenerator {
	return &RateLimitedGenerator{inner: inner, limiter: limiter}
}

// Generate waits for a token then delegates.
func (g *RateLimitedGenerator) Generate(ctx context.Context, prompt, system string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("wait for generate slot: %w", err)
	}
	return g.inner.Generate(ctx, prompt, system)
}

// RateLimitedEmbedder paces calls to an Embedder. One call consumes one
// token regardless of how many texts it carries.
type RateLimitedEmbedder struct {
	inner   search.Embedder
	limiter *rate.Limiter
}

// NewRateLimitedEmbedder wraps inner with limiter.
func NewRateLimitedEmbedder(inner search.Embedder, limiter *rate.Limiter) *RateLimitedEmbedder {
	return &RateLimitedEmbedder{inner: inner, limiter: limiter}
}

// Embed waits for a token then delegates.
func (e *RateLimitedEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for embed slot: %w", err)
	}
	return e.inner.Embed(ctx, texts)
}

var (
	_ service.Generator = (*OpenAIProvider)(nil)
	_ search.Embedder   = (*OpenAIProvider)(nil)
	_ service.Generator = (*RateLimitedGenerator)(nil)
	_ search.Embedder   = (*RateLimitedEmbedder)(nil)
)
