package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/resilience"
)

// Guarded bounds every Embed call by a timeout and routes it through a
// circuit breaker. Every failure it returns wraps ErrEmbeddingUnavailable.
type Guarded struct {
	inner   Embedder
	breaker *resilience.CircuitBreaker
	timeout time.Duration
}

var _ Embedder = (*Guarded)(nil)

func NewGuarded(inner Embedder, breaker *resilience.CircuitBreaker, timeout time.Duration) *Guarded {
	return &Guarded{inner: inner, breaker: breaker, timeout: timeout}
}

func (g *Guarded) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := g.breaker.Execute(func() error {
		return resilience.WithTimeout(ctx, g.timeout, "embed", func(ctx context.Context) error {
			v, err := g.inner.Embed(ctx, text)
			if err != nil {
				return err
			}
			vec = v
			return nil
		})
	})
	if err == nil {
		return vec, nil
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %w", apperrors.ErrEmbeddingUnavailable, err)
	}
	if resilience.IsTimeout(err) {
		return nil, fmt.Errorf("%w: %w: %w", apperrors.ErrEmbeddingUnavailable, apperrors.ErrTimeout, err)
	}
	return nil, fmt.Errorf("%w: %w", apperrors.ErrEmbeddingUnavailable, err)
}

func (g *Guarded) Dimensions() int { return g.inner.Dimensions() }

func (g *Guarded) Model() string { return g.inner.Model() }

// State exposes the breaker state for introspection.
func (g *Guarded) State() resilience.State { return g.breaker.GetState() }

// Ping delegates to the wrapped embedder when it supports probing.
func (g *Guarded) Ping(ctx context.Context) error {
	if p, ok := g.inner.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
