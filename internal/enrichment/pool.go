package enrichment

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/kafka"
)

// Invalidator drops cached retrieval results once new events are processed.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// PoolConfig sizes the pool and its tick.
type PoolConfig struct {
	Workers      int
	PollInterval time.Duration
	Worker       Config
}

// Stats are the pool's lifetime counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Batches   int64 `json:"batches"`
	Processed int64 `json:"processed"`
	Retried   int64 `json:"retried"`
	Failed    int64 `json:"failed"`
	LeaseLost int64 `json:"lease_lost"`
	Nudges    int64 `json:"nudges"`
}

// Pool runs a fixed number of workers. Each wakes on its tick or on a
// nudge and keeps claiming while full batches come back.
type Pool struct {
	workers     []*Worker
	interval    time.Duration
	nudge       chan struct{}
	invalidator Invalidator
	logger      *slog.Logger

	batches   atomic.Int64
	processed atomic.Int64
	retried   atomic.Int64
	failed    atomic.Int64
	leaseLost atomic.Int64
	nudges    atomic.Int64
}

type PoolOption func(*Pool)

func WithInvalidator(inv Invalidator) PoolOption {
	return func(p *Pool) { p.invalidator = inv }
}

func NewPool(deps Deps, cfg PoolConfig, opts ...PoolOption) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if deps.Scorer == nil {
		deps.Scorer = NewScorer(nil, DefaultCredibility)
	}
	p := &Pool{
		interval: cfg.PollInterval,
		nudge:    make(chan struct{}, cfg.Workers),
		logger:   slog.Default().With("component", "enrichment-pool"),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.workers = append(p.workers, NewWorker(deps, cfg.Worker))
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks until ctx is cancelled.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("enrichment pool started", "workers", len(p.workers), "interval", p.interval)
	g, ctx := errgroup.WithContext(ctx)
	for _, w := range p.workers {
		g.Go(func() error {
			p.loop(ctx, w)
			return nil
		})
	}
	err := g.Wait()
	p.logger.Info("enrichment pool stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, w *Worker) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		p.drain(ctx, w)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-p.nudge:
		}
	}
}

// drain runs batches until one comes back short, empty or without progress.
func (p *Pool) drain(ctx context.Context, w *Worker) BatchStats {
	var total BatchStats
	for ctx.Err() == nil {
		stats, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.logger.Error("enrichment batch failed", "worker", w.ID(), "error", err)
			}
			break
		}
		if stats.Claimed == 0 {
			break
		}
		p.record(stats)
		total.add(stats)
		if stats.Processed > 0 && p.invalidator != nil {
			if err := p.invalidator.Invalidate(ctx); err != nil {
				p.logger.Warn("retrieval cache invalidation failed", "error", err)
			}
		}
		// Failed attempts release their leases, so only a batch that made
		// progress justifies claiming again before the next tick.
		if stats.Claimed < w.cfg.BatchSize || stats.Processed == 0 {
			break
		}
	}
	return total
}

func (p *Pool) record(s BatchStats) {
	p.batches.Add(1)
	p.processed.Add(int64(s.Processed))
	p.retried.Add(int64(s.Retried))
	p.failed.Add(int64(s.Failed))
	p.leaseLost.Add(int64(s.LeaseLost))
}

// Drain processes pending events on the calling goroutine until a batch
// comes back short. The poll command uses it in place of Run.
func (p *Pool) Drain(ctx context.Context) BatchStats {
	return p.drain(ctx, p.workers[0])
}

// Nudge wakes an idle worker without blocking.
func (p *Pool) Nudge() {
	select {
	case p.nudge <- struct{}{}:
		p.nudges.Add(1)
	default:
	}
}

// HandleAdmitted is the Kafka handler for admission notifications.
func (p *Pool) HandleAdmitted(_ context.Context, _ []byte, value []byte) error {
	admitted, err := kafka.DecodeJSON[ingestion.AdmittedEvent](value)
	if err != nil {
		// Malformed notifications are dropped; the tick still finds the event.
		p.logger.Warn("ignoring malformed admission notice", "error", err)
		return nil
	}
	p.logger.Debug("admission notice", "id", admitted.ID, "source", admitted.Source)
	p.Nudge()
	return nil
}

func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   len(p.workers),
		Batches:   p.batches.Load(),
		Processed: p.processed.Load(),
		Retried:   p.retried.Load(),
		Failed:    p.failed.Load(),
		LeaseLost: p.leaseLost.Load(),
		Nudges:    p.nudges.Load(),
	}
}
