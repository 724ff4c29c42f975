package embedding

import (
	"context"
	"hash/fnv"
	"math"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/textproc"
)

var _ Embedder = (*HashEmbedder)(nil)

// HashEmbedder projects terms and adjacent-term pairs into a fixed number
// of buckets (the hashing trick) and L2-normalises the result. Texts that
// share vocabulary land close together under cosine distance.
type HashEmbedder struct {
	dims int
}

func NewHashEmbedder(dims int) *HashEmbedder {
	if dims <= 0 {
		dims = 256
	}
	return &HashEmbedder{dims: dims}
}

func (e *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float64, e.dims)
	terms := textproc.Terms(text)
	for i, t := range terms {
		e.add(vec, t, 1)
		if i > 0 {
			e.add(vec, terms[i-1]+" "+t, 0.5)
		}
	}

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, e.dims)
	if norm == 0 {
		return out, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, nil
}

// add uses one hash bit for the sign so collisions tend to cancel.
func (e *HashEmbedder) add(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(e.dims))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func (e *HashEmbedder) Dimensions() int { return e.dims }

func (e *HashEmbedder) Model() string { return "feature-hash" }
