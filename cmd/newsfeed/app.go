package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/admin"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion/coordinator"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/source"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/vectorstore"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/resilience"
)

// app is the assembled pipeline shared by every subcommand.
type app struct {
	cfg       *config.Config
	metrics   *metrics.Metrics
	registry  *source.Registry
	store     store.Store
	embedder  *embedding.Guarded
	vectors   *vectorstore.Memory
	retrieval *retrieval.Service
	pool      *enrichment.Pool
	ingest    *coordinator.Coordinator
	scheduler *scheduler.Manager
	admin     *admin.Service
	checker   *health.Checker
	consumer  *kafka.Consumer

	closers []func() error
}

// buildApp wires every component from cfg. Redis and Kafka are optional:
// when unreachable or disabled the pipeline runs without the result cache
// and without admission notifications.
func buildApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, metrics: metrics.New(), checker: health.NewChecker(0)}

	reg, err := source.NewRegistry(source.FromConfig(cfg.Sources))
	if err != nil {
		return nil, fmt.Errorf("building source registry: %w", err)
	}
	a.registry = reg

	if err := a.openStore(ctx); err != nil {
		a.close()
		return nil, err
	}

	inner, err := embedding.New(cfg.Embedding)
	if err != nil {
		a.close()
		return nil, err
	}
	breaker := resilience.NewCircuitBreaker("embedding", resilience.CircuitBreakerConfig{
		OnStateChange: func(name string, _, to resilience.State) {
			a.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})
	a.embedder = embedding.NewGuarded(inner, breaker, cfg.Enrichment.EmbedTimeout)
	a.checker.Register("embedder", health.Optional(health.Ping(a.embedder.Ping)))
	a.vectors = vectorstore.NewMemory(a.embedder.Dimensions())
	// Vectors live in memory only; events a previous run processed must be
	// embedded again before queries can match them.
	requeued, err := a.store.RequeueProcessed(ctx)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("requeueing processed events: %w", err)
	}
	if requeued > 0 {
		slog.Info("requeued processed events for re-embedding", "events", requeued)
	}

	retrievalOpts := []retrieval.Option{
		retrieval.WithMetrics(a.metrics),
		retrieval.WithMaxLimit(cfg.Ranking.MaxLimit),
	}
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis, "newsfeed")
		if err != nil {
			slog.Warn("redis unavailable, ranked result caching disabled", "error", err)
		} else {
			a.closers = append(a.closers, rc.Close)
			a.checker.Register("redis", health.Optional(health.Ping(rc.Ping)))
			retrievalOpts = append(retrievalOpts, retrieval.WithCache(retrieval.NewResultCache(rc, cfg.Redis.CacheTTL, a.metrics)))
			slog.Info("ranked result cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	a.retrieval = retrieval.New(a.store, a.vectors, a.embedder, retrievalOpts...)

	credibility := reg.Credibility()
	maps.Copy(credibility, cfg.Enrichment.Credibility)
	a.pool = enrichment.NewPool(
		enrichment.Deps{
			Store:    a.store,
			Embedder: a.embedder,
			Vectors:  a.vectors,
			Scorer:   enrichment.NewScorer(credibility, cfg.Enrichment.DefaultCredibility),
			Metrics:  a.metrics,
		},
		enrichment.PoolConfig{
			Workers:      cfg.Enrichment.Workers,
			PollInterval: cfg.Enrichment.PollInterval,
			Worker: enrichment.Config{
				BatchSize:   cfg.Enrichment.BatchSize,
				Lease:       cfg.Enrichment.Lease,
				MaxAttempts: cfg.Enrichment.MaxAttempts,
			},
		},
		enrichment.WithInvalidator(a.retrieval),
	)

	coordOpts := []coordinator.Option{
		coordinator.WithMetrics(a.metrics),
		coordinator.WithLookback(cfg.Store.DedupLookback),
		coordinator.WithAdmitHook(a.pool.Nudge),
	}
	if cfg.Kafka.Enabled {
		topic := cfg.Kafka.Topics.EventsAdmitted
		producer := kafka.NewProducer(cfg.Kafka, topic)
		a.closers = append(a.closers, producer.Close)
		coordOpts = append(coordOpts, coordinator.WithNotifier(producer))
		a.consumer = kafka.NewConsumer(cfg.Kafka, topic, a.pool.HandleAdmitted)
		slog.Info("admission notifications enabled", "brokers", cfg.Kafka.Brokers, "topic", topic)
	}
	a.ingest = coordinator.New(a.store, coordOpts...)

	a.scheduler, err = scheduler.NewManager(reg, a.ingest, cfg.Scheduler, scheduler.WithMetrics(a.metrics))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("building scheduler: %w", err)
	}

	a.admin = admin.New(admin.Deps{
		Store:      a.store,
		Scheduler:  a.scheduler,
		Ingestion:  a.ingest,
		Enrichment: a.pool,
		Cache:      a.retrieval,
		Vectors:    a.vectors,
		Embedder: admin.EmbedderInfo{
			Model:   a.embedder.Model(),
			Circuit: func() string { return a.embedder.State().String() },
		},
	})
	return a, nil
}

func (a *app) openStore(ctx context.Context) error {
	switch a.cfg.Store.Driver {
	case "postgres":
		client, err := postgres.New(a.cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		pg := store.NewPostgres(client)
		if err := pg.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating event store: %w", err)
		}
		a.store = pg
		slog.Info("event store ready", "driver", "postgres", "host", a.cfg.Postgres.Host, "database", a.cfg.Postgres.Database)
	default:
		a.store = store.NewMemory()
		slog.Info("event store ready", "driver", "memory")
	}
	a.checker.Register("store", health.Ping(a.store.Ping))
	return nil
}

// close releases connections in reverse order of acquisition.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
