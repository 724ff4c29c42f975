package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion/coordinator"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/source"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenStore struct{}

func (brokenStore) Counts(context.Context) (event.Counts, error) {
	return event.Counts{}, errors.New("connection refused")
}

type cacheStats struct{ hits, misses int64 }

func (c cacheStats) CacheStats() (int64, int64) { return c.hits, c.misses }

func setup(t *testing.T) (*store.Memory, *coordinator.Coordinator, *scheduler.Manager) {
	t.Helper()
	reg, err := source.NewRegistry([]source.Config{
		{
			Name: "ok", Enabled: true, PollInterval: time.Minute, Adapter: "generic", Fetcher: "static",
			Options: map[string]any{"payload": map[string]any{
				"incidents": []any{map[string]any{"id": "1", "title": "Database outage"}},
			}},
		},
		{
			Name: "broken", Enabled: true, PollInterval: time.Minute, Adapter: "generic", Fetcher: "static",
			Options: map[string]any{"payload": map[string]any{"nothing": true}},
		},
		{Name: "off", Enabled: false, PollInterval: time.Minute, Adapter: "generic", Fetcher: "static"},
	})
	require.NoError(t, err)

	st := store.NewMemory()
	coord := coordinator.New(st)
	mgr, err := scheduler.NewManager(reg, coord, config.SchedulerConfig{DegradedThreshold: 2})
	require.NoError(t, err)
	return st, coord, mgr
}

func TestStatus(t *testing.T) {
	st, coord, mgr := setup(t)
	svc := New(Deps{
		Store:     st,
		Scheduler: mgr,
		Ingestion: coord,
		Embedder:  EmbedderInfo{Model: "feature-hash", Circuit: func() string { return "closed" }},
	})

	rep := svc.Status(context.Background())
	assert.Equal(t, "ok", rep.Status)
	assert.Equal(t, 3, rep.Sources)
	assert.Equal(t, 2, rep.EnabledSources)
	assert.Empty(t, rep.DegradedSources)
	assert.False(t, rep.SchedulerRunning)
	assert.Equal(t, "closed", rep.EmbeddingCircuit)

	ctx := context.Background()
	mgr.PollAll(ctx)
	mgr.PollAll(ctx)

	rep = svc.Status(ctx)
	assert.Equal(t, "degraded", rep.Status)
	assert.Equal(t, []string{"broken"}, rep.DegradedSources)
	assert.Equal(t, 1, rep.Events.Pending)
}

func TestStatus_StoreFailureIsReportedNotReturned(t *testing.T) {
	_, _, mgr := setup(t)
	svc := New(Deps{Store: brokenStore{}, Scheduler: mgr})

	rep := svc.Status(context.Background())
	assert.Equal(t, "degraded", rep.Status)
	assert.Contains(t, rep.Error, "connection refused")
	assert.Zero(t, rep.Events.Total)

	stats := svc.Stats(context.Background())
	assert.Contains(t, stats.Error, "connection refused")
	assert.Zero(t, stats.Events.Total)
}

func TestSourcesAndScheduler(t *testing.T) {
	_, _, mgr := setup(t)
	svc := New(Deps{Store: store.NewMemory(), Scheduler: mgr})

	sources := svc.Sources()
	require.Len(t, sources, 3)
	assert.Equal(t, "broken", sources[0].Name)
	assert.Equal(t, "off", sources[1].Name)
	assert.Equal(t, scheduler.StateDisabled, sources[1].State)
	assert.Equal(t, scheduler.StateIdle, sources[2].State)

	sched := svc.Scheduler()
	assert.False(t, sched.Running)
	assert.Len(t, sched.Jobs, 3)
}

func TestStats(t *testing.T) {
	st, coord, mgr := setup(t)
	svc := New(Deps{
		Store:     st,
		Scheduler: mgr,
		Ingestion: coord,
		Cache:     cacheStats{hits: 3, misses: 1},
	})
	ctx := context.Background()
	mgr.PollAll(ctx)
	mgr.PollAll(ctx)

	rep := svc.Stats(ctx)
	assert.Equal(t, 1, rep.Events.Pending)
	assert.Equal(t, int64(1), rep.Ingestion.Accepted)
	assert.Equal(t, int64(1), rep.Ingestion.Duplicates)
	assert.Equal(t, int64(4), rep.Polls.Total)
	assert.Equal(t, int64(2), rep.Polls.Failures)
	assert.Equal(t, 1, rep.Polls.FailingSources)
	assert.Equal(t, CacheStats{Hits: 3, Misses: 1, HitRate: 0.75}, rep.Cache)
	assert.Empty(t, rep.Error)
}
