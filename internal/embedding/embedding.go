// Package embedding turns text into fixed-length vectors. The HTTP
// implementation talks to an Ollama-compatible model server; the hashing
// implementation is deterministic and dependency-free for local runs and
// tests. Guarded wraps either one behind a circuit breaker.
package embedding

import (
	"context"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
)

// Embedder generates vector embeddings from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Model() string
}

// Pinger is implemented by embedders with a reachability probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// New builds the embedder selected by cfg.Provider.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "http":
		return NewHTTPEmbedder(HTTPConfig{
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
		}), nil
	case "hash", "":
		return NewHashEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}
