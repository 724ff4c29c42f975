package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func TestHashEmbedder_DeterministicAndNormalised(t *testing.T) {
	e := NewHashEmbedder(128)
	a, err := e.Embed(context.Background(), "Kubernetes control plane outage")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "Kubernetes control plane outage")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 128)
	assert.InDelta(t, 1.0, cosine(a, a), 1e-6)
}

func TestHashEmbedder_SharedVocabularyIsCloser(t *testing.T) {
	e := NewHashEmbedder(256)
	ctx := context.Background()
	q, _ := e.Embed(ctx, "database outage")
	near, _ := e.Embed(ctx, "major database outage in us-east")
	far, _ := e.Embed(ctx, "new javascript framework released")

	assert.Greater(t, cosine(q, near), cosine(q, far))
}

func TestHashEmbedder_EmptyTextIsZeroVector(t *testing.T) {
	v, err := NewHashEmbedder(8).Embed(context.Background(), "the a of")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, 8), v)
}

func TestHTTPEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/embeddings":
			var req embedRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			_ = json.NewEncoder(w).Encode(embedResponse{Embedding: []float64{0.1, 0.2, 0.3}})
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	e := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL + "/", Model: "test-model", Dimensions: 3})
	v, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, v)
	assert.NoError(t, e.Ping(context.Background()))

	wrongDims := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "test-model", Dimensions: 4})
	_, err = wrongDims.Embed(context.Background(), "hello")
	assert.Error(t, err)
}

func TestHTTPEmbedder_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL}).Embed(context.Background(), "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

type flakyEmbedder struct {
	calls atomic.Int32
	err   error
	delay time.Duration
}

func (f *flakyEmbedder) Embed(ctx context.Context, _ string) ([]float32, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1}, nil
}

func (f *flakyEmbedder) Dimensions() int { return 1 }
func (f *flakyEmbedder) Model() string   { return "flaky" }

func TestGuarded_OpensAfterFailures(t *testing.T) {
	inner := &flakyEmbedder{err: errors.New("connection refused")}
	g := NewGuarded(inner, resilience.NewCircuitBreaker("embed", resilience.CircuitBreakerConfig{
		FailureThreshold: 2,
		ResetTimeout:     time.Hour,
	}), time.Second)

	for i := 0; i < 2; i++ {
		_, err := g.Embed(context.Background(), "x")
		assert.ErrorIs(t, err, apperrors.ErrEmbeddingUnavailable)
	}
	assert.Equal(t, resilience.StateOpen, g.State())

	_, err := g.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, apperrors.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), inner.calls.Load(), "open circuit does not reach the embedder")
}

func TestGuarded_Timeout(t *testing.T) {
	g := NewGuarded(&flakyEmbedder{delay: time.Second}, resilience.NewCircuitBreaker("embed", resilience.CircuitBreakerConfig{}), 20*time.Millisecond)
	_, err := g.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, apperrors.ErrEmbeddingUnavailable)
	assert.ErrorIs(t, err, apperrors.ErrTimeout)
}

func TestNew_Providers(t *testing.T) {
	e, err := New(config.EmbeddingConfig{Provider: "hash", Dimensions: 32})
	require.NoError(t, err)
	assert.Equal(t, 32, e.Dimensions())

	e, err = New(config.EmbeddingConfig{Provider: "http", Model: "m", Dimensions: 16})
	require.NoError(t, err)
	assert.Equal(t, "m", e.Model())

	_, err = New(config.EmbeddingConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}
