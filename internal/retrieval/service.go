// Package retrieval serves ranked and unranked views of processed events.
// It loads candidates from the event store, derives semantic relevancy
// from the vector store when a query is given, ranks them and optionally
// caches the response in Redis.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/vectorstore"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/metrics"
)

// Response is one ranked retrieval.
type Response struct {
	Query   string           `json:"query,omitempty"`
	Request ranking.Request  `json:"request"`
	Count   int              `json:"count"`
	Events  []ranking.Scored `json:"events"`
	Cached  bool             `json:"cached"`
	TookMs  int64            `json:"took_ms"`
}

// Service is safe for concurrent use; it only reads shared state.
type Service struct {
	store    store.Store
	vectors  vectorstore.Store
	embedder embedding.Embedder
	cache    *ResultCache
	metrics  *metrics.Metrics
	maxLimit int
	now      func() time.Time
	logger   *slog.Logger
}

type Option func(*Service)

// WithCache enables response caching. A nil cache leaves it disabled.
func WithCache(c *ResultCache) Option { return func(s *Service) { s.cache = c } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithMaxLimit(n int) Option { return func(s *Service) { s.maxLimit = n } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(st store.Store, vectors vectorstore.Store, embedder embedding.Embedder, opts ...Option) *Service {
	s := &Service{
		store:    st,
		vectors:  vectors,
		embedder: embedder,
		now:      time.Now,
		logger:   slog.Default().With("component", "retrieval"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Retrieve ranks processed events for req. With an empty query every
// candidate has relevancy 1 and the order is driven by recency.
func (s *Service) Retrieve(ctx context.Context, query string, req ranking.Request) (*Response, error) {
	if err := req.Validate(s.maxLimit); err != nil {
		return nil, err
	}
	start := time.Now()
	compute := func() (*Response, error) { return s.rank(ctx, query, req) }

	var (
		resp   *Response
		status = "disabled"
		err    error
	)
	if s.cache != nil {
		var hit bool
		resp, hit, err = s.cache.GetOrCompute(ctx, cacheKey(query, req), compute)
		status = "miss"
		if hit {
			status = "hit"
		}
	} else {
		resp, err = compute()
	}
	if err != nil {
		return nil, err
	}

	out := *resp
	out.Cached = status == "hit"
	out.TookMs = time.Since(start).Milliseconds()
	if s.metrics != nil {
		s.metrics.RetrievalLatency.WithLabelValues(status).Observe(time.Since(start).Seconds())
		s.metrics.RetrievalResultsCount.Observe(float64(out.Count))
	}
	logger.FromContext(ctx).Debug("retrieval completed",
		"component", "retrieval",
		"query", query,
		"results", out.Count,
		"cache", status,
	)
	return &out, nil
}

func (s *Service) rank(ctx context.Context, query string, req ranking.Request) (*Response, error) {
	now := s.now()
	events, err := s.store.ListProcessed(ctx, req.Cutoff(now))
	if err != nil {
		return nil, fmt.Errorf("listing processed events: %w", err)
	}

	var relevancy map[string]float64
	if query != "" {
		relevancy, err = s.relevancy(ctx, query, events)
		if err != nil {
			return nil, err
		}
	}

	ranked := ranking.Rank(events, relevancy, req, now)
	return &Response{Query: query, Request: req, Count: len(ranked), Events: ranked}, nil
}

// relevancy maps each candidate id to 1 - cosine distance from the query.
func (s *Service) relevancy(ctx context.Context, query string, events []event.Event) (map[string]float64, error) {
	rel := make(map[string]float64, len(events))
	if len(events) == 0 {
		return rel, nil
	}
	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	hits, err := s.vectors.NearestNeighbors(ctx, vec, len(ids), vectorstore.Filter{IDs: ids})
	if err != nil {
		return nil, fmt.Errorf("querying nearest neighbours: %w", err)
	}
	for _, h := range hits {
		rel[h.ID] = 1 - h.Distance
	}
	return rel, nil
}

// All returns every processed event, unranked and ordered by id.
func (s *Service) All(ctx context.Context) ([]event.Event, error) {
	events, err := s.store.ListProcessed(ctx, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("listing processed events: %w", err)
	}
	return events, nil
}

// Invalidate drops cached responses. It is a no-op without a cache.
func (s *Service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

// CacheStats reports hits and misses; both are zero without a cache.
func (s *Service) CacheStats() (hits, misses int64) {
	if s.cache == nil {
		return 0, 0
	}
	return s.cache.Stats()
}
