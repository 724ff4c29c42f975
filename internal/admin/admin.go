// Package admin assembles read-only views over the running pipeline for
// operators: overall status, configured sources, scheduler jobs and
// lifetime counters. None of its operations fail; a collaborator that
// cannot answer is reported through an error note next to zero values.
package admin

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/scheduler"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/source"
)

// Counter reports event counts by status.
type Counter interface {
	Counts(ctx context.Context) (event.Counts, error)
}

// Scheduler is the slice of *scheduler.Manager the admin views read.
type Scheduler interface {
	Running() bool
	Statuses() []scheduler.JobStatus
	Degraded() []string
	Sources() *source.Registry
}

// Deps are the collaborators introspected. Ingestion, Enrichment, Cache
// and Embedder may be nil.
type Deps struct {
	Store      Counter
	Scheduler  Scheduler
	Ingestion  interface{ Totals() ingestion.Totals }
	Enrichment interface{ Stats() enrichment.Stats }
	Cache      interface{ CacheStats() (hits, misses int64) }
	Vectors    interface{ Len() int }
	Embedder   EmbedderInfo
}

// EmbedderInfo describes the embedding capability. Circuit may be nil.
type EmbedderInfo struct {
	Model   string
	Circuit func() string
}

type Service struct {
	deps      Deps
	startedAt time.Time
	now       func() time.Time
	logger    *slog.Logger
}

func New(deps Deps) *Service {
	return &Service{
		deps:      deps,
		startedAt: time.Now(),
		now:       time.Now,
		logger:    slog.Default().With("component", "admin"),
	}
}

// StatusReport is the one-glance health of the pipeline.
type StatusReport struct {
	Status           string       `json:"status"`
	StartedAt        time.Time    `json:"started_at"`
	UptimeSeconds    int64        `json:"uptime_seconds"`
	SchedulerRunning bool         `json:"scheduler_running"`
	Sources          int          `json:"sources"`
	EnabledSources   int          `json:"enabled_sources"`
	DegradedSources  []string     `json:"degraded_sources"`
	Events           event.Counts `json:"events"`
	EmbeddingModel   string       `json:"embedding_model,omitempty"`
	EmbeddingCircuit string       `json:"embedding_circuit,omitempty"`
	Error            string       `json:"error,omitempty"`
}

func (s *Service) Status(ctx context.Context) StatusReport {
	reg := s.deps.Scheduler.Sources()
	rep := StatusReport{
		Status:           "ok",
		StartedAt:        s.startedAt,
		UptimeSeconds:    int64(s.now().Sub(s.startedAt).Seconds()),
		SchedulerRunning: s.deps.Scheduler.Running(),
		Sources:          reg.Len(),
		EnabledSources:   len(reg.Enabled()),
		DegradedSources:  s.deps.Scheduler.Degraded(),
		EmbeddingModel:   s.deps.Embedder.Model,
	}
	if rep.DegradedSources == nil {
		rep.DegradedSources = []string{}
	}
	if s.deps.Embedder.Circuit != nil {
		rep.EmbeddingCircuit = s.deps.Embedder.Circuit()
	}
	rep.Events, rep.Error = s.counts(ctx)

	if len(rep.DegradedSources) > 0 || rep.EmbeddingCircuit == "open" || rep.Error != "" {
		rep.Status = "degraded"
	}
	return rep
}

// SourceView is a source's configuration joined with its job state.
type SourceView struct {
	source.Config
	State    scheduler.State `json:"state"`
	Degraded bool            `json:"degraded"`
}

func (s *Service) Sources() []SourceView {
	states := make(map[string]scheduler.JobStatus)
	for _, st := range s.deps.Scheduler.Statuses() {
		states[st.Source] = st
	}
	all := s.deps.Scheduler.Sources().All()
	out := make([]SourceView, 0, len(all))
	for _, c := range all {
		st := states[c.Name]
		out = append(out, SourceView{Config: c, State: st.State, Degraded: st.Degraded})
	}
	return out
}

// SchedulerReport lists every job's state.
type SchedulerReport struct {
	Running bool                  `json:"running"`
	Jobs    []scheduler.JobStatus `json:"jobs"`
}

func (s *Service) Scheduler() SchedulerReport {
	return SchedulerReport{
		Running: s.deps.Scheduler.Running(),
		Jobs:    s.deps.Scheduler.Statuses(),
	}
}

// PollStats aggregates the scheduler's per-source counters.
type PollStats struct {
	Total             int64   `json:"total"`
	Failures          int64   `json:"failures"`
	FailingSources    int     `json:"failing_sources"`
	AvgLastDurationMs float64 `json:"avg_last_duration_ms"`
}

// CacheStats reports retrieval cache effectiveness.
type CacheStats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// StatsReport gathers every lifetime counter.
type StatsReport struct {
	Events     event.Counts     `json:"events"`
	Ingestion  ingestion.Totals `json:"ingestion"`
	Enrichment enrichment.Stats `json:"enrichment"`
	Polls      PollStats        `json:"polls"`
	Cache      CacheStats       `json:"cache"`
	Vectors    int              `json:"vectors"`
	Error      string           `json:"error,omitempty"`
}

func (s *Service) Stats(ctx context.Context) StatsReport {
	var rep StatsReport
	rep.Events, rep.Error = s.counts(ctx)
	if s.deps.Ingestion != nil {
		rep.Ingestion = s.deps.Ingestion.Totals()
	}
	if s.deps.Enrichment != nil {
		rep.Enrichment = s.deps.Enrichment.Stats()
	}
	if s.deps.Vectors != nil {
		rep.Vectors = s.deps.Vectors.Len()
	}
	if s.deps.Cache != nil {
		hits, misses := s.deps.Cache.CacheStats()
		rep.Cache = CacheStats{Hits: hits, Misses: misses}
		if total := hits + misses; total > 0 {
			rep.Cache.HitRate = float64(hits) / float64(total)
		}
	}

	var durations, sampled int64
	for _, st := range s.deps.Scheduler.Statuses() {
		rep.Polls.Total += st.TotalPolls
		rep.Polls.Failures += st.TotalFailures
		if st.ConsecutiveFailures > 0 {
			rep.Polls.FailingSources++
		}
		if st.LastResult != nil {
			durations += st.LastResult.DurationMs
			sampled++
		}
	}
	if sampled > 0 {
		rep.Polls.AvgLastDurationMs = float64(durations) / float64(sampled)
	}
	return rep
}

func (s *Service) counts(ctx context.Context) (event.Counts, string) {
	c, err := s.deps.Store.Counts(ctx)
	if err != nil {
		s.logger.Error("counting events failed", "error", err)
		return event.Counts{}, "event store unavailable: " + err.Error()
	}
	return c, ""
}
