// Package vectorstore holds event embeddings with their metadata and
// answers nearest-neighbour queries under cosine distance.
package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// Metadata is stored alongside each vector.
type Metadata struct {
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Filter restricts which vectors a query considers. Zero fields match all.
type Filter struct {
	IDs            []string
	Source         string
	PublishedSince time.Time
}

// Neighbor is one query hit. Distance is cosine distance in [0, 2].
type Neighbor struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
}

// Store is the vector capability consumed by enrichment and retrieval.
type Store interface {
	// Upsert stores vec for id and returns the embedding reference.
	Upsert(ctx context.Context, id string, vec []float32, meta Metadata) (string, error)
	NearestNeighbors(ctx context.Context, vec []float32, k int, f Filter) ([]Neighbor, error)
	QueryByMetadata(ctx context.Context, f Filter) ([]string, error)
	Len() int
}

type entry struct {
	vec  []float32
	norm float64
	meta Metadata
}

// Memory is an exact, in-process Store that scans every vector per query.
type Memory struct {
	mu      sync.RWMutex
	dims    int
	entries map[string]entry
}

var _ Store = (*Memory)(nil)

func NewMemory(dims int) *Memory {
	return &Memory{dims: dims, entries: make(map[string]entry)}
}

func (m *Memory) Upsert(ctx context.Context, id string, vec []float32, meta Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.dims > 0 && len(vec) != m.dims {
		return "", fmt.Errorf("vector for %s has %d dimensions, want %d", id, len(vec), m.dims)
	}
	cp := make([]float32, len(vec))
	copy(cp, vec)
	m.mu.Lock()
	m.entries[id] = entry{vec: cp, norm: norm(cp), meta: meta}
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) NearestNeighbors(ctx context.Context, vec []float32, k int, f Filter) ([]Neighbor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}
	qn := norm(vec)

	m.mu.RLock()
	hits := make([]Neighbor, 0)
	m.each(f, func(id string, e entry) {
		hits = append(hits, Neighbor{ID: id, Distance: cosineDistance(vec, qn, e.vec, e.norm)})
	})
	m.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *Memory) QueryByMetadata(ctx context.Context, f Filter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	ids := make([]string, 0)
	m.each(f, func(id string, _ entry) { ids = append(ids, id) })
	m.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// each visits entries matching f. Callers hold m.mu.
func (m *Memory) each(f Filter, fn func(id string, e entry)) {
	match := func(e entry) bool {
		if f.Source != "" && e.meta.Source != f.Source {
			return false
		}
		return f.PublishedSince.IsZero() || !e.meta.PublishedAt.Before(f.PublishedSince)
	}
	if f.IDs != nil {
		for _, id := range f.IDs {
			if e, ok := m.entries[id]; ok && match(e) {
				fn(id, e)
			}
		}
		return
	}
	for id, e := range m.entries {
		if match(e) {
			fn(id, e)
		}
	}
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

// cosineDistance is 1 - cosine similarity. A zero vector is treated as
// orthogonal to everything.
func cosineDistance(a []float32, na float64, b []float32, nb float64) float64 {
	if na == 0 || nb == 0 || len(a) != len(b) {
		return 1
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	d := 1 - dot/(na*nb)
	if d < 0 {
		return 0
	}
	return d
}
