package enrichment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/vectorstore"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/metrics"
)

// Config bounds a worker's batches and leases.
type Config struct {
	BatchSize   int
	Lease       time.Duration
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 16
	}
	if c.Lease <= 0 {
		c.Lease = time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Deps are the collaborators shared by every worker in a pool.
type Deps struct {
	Store    store.Store
	Embedder embedding.Embedder
	Vectors  vectorstore.Store
	Scorer   *Scorer
	Metrics  *metrics.Metrics
}

// BatchStats counts outcomes of one RunOnce call.
type BatchStats struct {
	Claimed   int `json:"claimed"`
	Processed int `json:"processed"`
	Retried   int `json:"retried"`
	Failed    int `json:"failed"`
	LeaseLost int `json:"lease_lost"`
}

func (b *BatchStats) add(o BatchStats) {
	b.Claimed += o.Claimed
	b.Processed += o.Processed
	b.Retried += o.Retried
	b.Failed += o.Failed
	b.LeaseLost += o.LeaseLost
}

// Worker processes leased batches. Each worker has a unique owner id so
// the store can tell its leases apart from other workers'.
type Worker struct {
	id     string
	deps   Deps
	cfg    Config
	logger *slog.Logger
}

func NewWorker(deps Deps, cfg Config) *Worker {
	if deps.Scorer == nil {
		deps.Scorer = NewScorer(nil, DefaultCredibility)
	}
	id := "worker-" + uuid.NewString()
	return &Worker{
		id:     id,
		deps:   deps,
		cfg:    cfg.withDefaults(),
		logger: slog.Default().With("component", "enrichment", "worker", id),
	}
}

func (w *Worker) ID() string { return w.id }

// RunOnce claims up to BatchSize pending events and enriches each one.
// Only a failed claim is returned as an error; per-event failures are
// recorded on the event and reported in the stats.
func (w *Worker) RunOnce(ctx context.Context) (BatchStats, error) {
	var stats BatchStats
	claimed, err := w.deps.Store.ClaimPending(ctx, w.id, w.cfg.Lease, w.cfg.BatchSize)
	if err != nil {
		return stats, fmt.Errorf("claiming pending events: %w", err)
	}
	stats.Claimed = len(claimed)

	for i := range claimed {
		if ctx.Err() != nil {
			// Unprocessed leases expire and are reclaimed.
			break
		}
		ev := &claimed[i]
		start := time.Now()
		outcome := w.process(ctx, ev)
		switch outcome {
		case "processed":
			stats.Processed++
		case "retried":
			stats.Retried++
		case "failed":
			stats.Failed++
		case "lease_lost":
			stats.LeaseLost++
		}
		if w.deps.Metrics != nil {
			w.deps.Metrics.EnrichmentTotal.WithLabelValues(outcome).Inc()
			w.deps.Metrics.EnrichmentDuration.Observe(time.Since(start).Seconds())
		}
	}
	return stats, nil
}

func (w *Worker) process(ctx context.Context, ev *event.Event) string {
	vec, err := w.deps.Embedder.Embed(ctx, ev.Text())
	if err != nil {
		return w.fail(ctx, ev, fmt.Errorf("embedding: %w", err))
	}
	ref, err := w.deps.Vectors.Upsert(ctx, ev.ID, vec, vectorstore.Metadata{
		Source:      ev.Source,
		PublishedAt: ev.PublishedAt,
	})
	if err != nil {
		return w.fail(ctx, ev, fmt.Errorf("upserting vector: %w", err))
	}

	score := w.deps.Scorer.Score(ev)
	if err := w.deps.Store.MarkProcessed(ctx, ev.ID, w.id, score, ref); err != nil {
		if errors.Is(err, apperrors.ErrLeaseLost) {
			w.logger.Warn("lease lost before completion", "id", ev.ID)
			return "lease_lost"
		}
		return w.fail(ctx, ev, fmt.Errorf("marking processed: %w", err))
	}
	w.logger.Debug("event processed", "id", ev.ID, "source", ev.Source, "score", score)
	return "processed"
}

func (w *Worker) fail(ctx context.Context, ev *event.Event, cause error) string {
	status, err := w.deps.Store.RecordFailure(ctx, ev.ID, w.id, w.cfg.MaxAttempts)
	if err != nil {
		if errors.Is(err, apperrors.ErrLeaseLost) {
			w.logger.Warn("lease lost while recording failure", "id", ev.ID, "cause", cause)
			return "lease_lost"
		}
		w.logger.Error("recording enrichment failure", "id", ev.ID, "cause", cause, "error", err)
		return "retried"
	}
	if status == event.StatusFailed {
		w.logger.Error("event failed permanently",
			"id", ev.ID,
			"attempts", ev.EnrichmentAttempts+1,
			"error", cause,
		)
		return "failed"
	}
	w.logger.Warn("enrichment attempt failed", "id", ev.ID, "error", cause)
	return "retried"
}
