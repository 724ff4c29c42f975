// Package scheduler polls every enabled source on its own interval. Each
// source runs in its own goroutine with single-flight polls, exponential
// backoff on failure and a degraded flag once failures pile up. Failures
// never disable a source.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/source"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/tracing"
)

// Ingester admits adapted candidates. *coordinator.Coordinator satisfies it.
type Ingester interface {
	Ingest(ctx context.Context, candidates []event.Candidate) ingestion.Result
}

// FetcherFactory builds the fetch strategy for a source.
type FetcherFactory func(cfg source.Config) (source.Fetcher, error)

const skippedRunning = "already running"

// Manager owns the poll jobs of every configured source.
type Manager struct {
	registry *source.Registry
	ingester Ingester
	cfg      config.SchedulerConfig
	backoff  resilience.Backoff
	jobs     map[string]*job
	order    []string
	metrics  *metrics.Metrics
	now      func() time.Time
	logger   *slog.Logger

	newFetcher FetcherFactory
	httpClient *http.Client

	mu        sync.Mutex
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
	startedAt time.Time
}

type Option func(*Manager)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Manager) { s.metrics = m } }

func WithClock(now func() time.Time) Option { return func(s *Manager) { s.now = now } }

func WithHTTPClient(c *http.Client) Option { return func(s *Manager) { s.httpClient = c } }

// WithFetcherFactory replaces the default per-source fetch strategy.
func WithFetcherFactory(f FetcherFactory) Option { return func(s *Manager) { s.newFetcher = f } }

// NewManager builds one job per registered source. Disabled sources get a
// job too so they show up in status, but they are never polled.
func NewManager(reg *source.Registry, ing Ingester, cfg config.SchedulerConfig, opts ...Option) (*Manager, error) {
	if cfg.BackoffInitial <= 0 {
		cfg.BackoffInitial = 30 * time.Second
	}
	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 30 * time.Minute
	}
	if cfg.DegradedThreshold <= 0 {
		cfg.DegradedThreshold = 3
	}
	m := &Manager{
		registry:   reg,
		ingester:   ing,
		cfg:        cfg,
		backoff:    resilience.Backoff{Initial: cfg.BackoffInitial, Max: cfg.BackoffMax, Multiplier: 2},
		jobs:       make(map[string]*job, reg.Len()),
		now:        time.Now,
		logger:     logger.WithComponent("scheduler"),
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.newFetcher == nil {
		m.newFetcher = func(c source.Config) (source.Fetcher, error) {
			return source.NewFetcher(c, m.httpClient)
		}
	}

	for _, sc := range reg.All() {
		f, err := m.newFetcher(sc)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		a, err := source.NewAdapter(sc)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", sc.Name, err)
		}
		j := newJob(sc, f, a)
		j.logger = logger.WithSource("scheduler", sc.Name)
		m.jobs[sc.Name] = j
		m.order = append(m.order, sc.Name)
	}
	return m, nil
}

// Start launches one loop per enabled source. It is a no-op when already
// started.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.startedAt = m.now()

	enabled := 0
	for _, name := range m.order {
		j := m.jobs[name]
		if !j.cfg.Enabled {
			continue
		}
		first := m.now()
		if !m.cfg.RunOnStart {
			first = first.Add(j.cfg.PollInterval)
		}
		j.setNext(first)
		enabled++
		m.wg.Add(1)
		go m.loop(ctx, j)
	}
	m.logger.Info("scheduler started", "sources", enabled, "run_on_start", m.cfg.RunOnStart)
}

// Stop cancels every loop and waits for in-flight scheduled polls.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("scheduler stopped")
}

func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) StartedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.startedAt
}

func (m *Manager) loop(ctx context.Context, j *job) {
	defer m.wg.Done()
	timer := time.NewTimer(m.until(j))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-j.rescheduled:
			resetTimer(timer, m.until(j))
		case <-timer.C:
			if m.until(j) > 0 {
				// A manual poll moved the next run.
				timer.Reset(m.until(j))
				continue
			}
			if res := m.poll(ctx, j); res.Skipped {
				// A manual poll holds the job; it wakes us once it has
				// released the job and moved next.
				if !m.awaitIdle(ctx, j) {
					return
				}
			} else {
				// Drain the wake-up our own poll just queued.
				select {
				case <-j.rescheduled:
				default:
				}
			}
			timer.Reset(m.until(j))
		}
	}
}

// awaitIdle blocks until the in-flight poll of j has finished. It returns
// false when ctx is cancelled first.
func (m *Manager) awaitIdle(ctx context.Context, j *job) bool {
	for j.running.Load() {
		select {
		case <-ctx.Done():
			return false
		case <-j.rescheduled:
		}
	}
	return true
}

func (m *Manager) until(j *job) time.Duration {
	d := j.nextRun().Sub(m.now())
	if d < 0 {
		return 0
	}
	return d
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}

// poll runs fetch, adapt and ingest for j unless a poll is already in
// flight for the same source.
func (m *Manager) poll(ctx context.Context, j *job) PollResult {
	name := j.cfg.Name
	start := m.now()
	if !j.running.CompareAndSwap(false, true) {
		j.logger.Debug("poll skipped", "reason", skippedRunning)
		m.count(name, "skipped")
		return PollResult{Source: name, Skipped: true, Reason: skippedRunning, StartedAt: start}
	}

	j.mu.Lock()
	prev := j.state
	j.state = StatePolling
	j.lastRun = start
	j.mu.Unlock()

	res := PollResult{Source: name, StartedAt: start}
	err := m.run(ctx, j, &res)
	end := m.now()
	res.DurationMs = end.Sub(start).Milliseconds()
	if m.metrics != nil {
		m.metrics.PollDuration.WithLabelValues(name).Observe(end.Sub(start).Seconds())
	}

	if err != nil && ctx.Err() != nil {
		return m.cancelled(j, prev, res, err)
	}

	j.mu.Lock()
	j.polls++
	var next time.Time
	if err != nil {
		j.failures++
		j.fails++
		j.state = StateBackoff
		j.lastErr = err.Error()
		next = end.Add(m.backoff.Delay(j.failures))
		res.Error = err.Error()
	} else {
		j.failures = 0
		j.state = StateIdle
		j.lastErr = ""
		j.lastSuccess = end
		next = end.Add(j.cfg.PollInterval)
	}
	failures := j.failures
	last := res
	j.last = &last
	j.mu.Unlock()
	j.running.Store(false)
	j.setNext(next)

	if m.metrics != nil {
		m.metrics.SourceFailures.WithLabelValues(name).Set(float64(failures))
	}
	if err != nil {
		m.count(name, "failure")
		j.logger.Warn("poll failed",
			"consecutive_failures", failures,
			"degraded", failures >= m.cfg.DegradedThreshold,
			"next_run_in", next.Sub(end).String(),
			"error", err,
		)
	} else {
		m.count(name, "success")
		j.logger.Info("poll completed",
			"fetched", res.Fetched,
			"accepted", res.Ingest.Accepted,
			"duplicates", res.Ingest.Duplicates,
			"rejected", res.Ingest.Rejected,
			"warnings", res.Warnings,
		)
	}
	return res
}

// cancelled finishes a poll whose caller went away. The source's failure
// count and schedule are left as they were.
func (m *Manager) cancelled(j *job, prev State, res PollResult, err error) PollResult {
	res.Error = err.Error()
	j.mu.Lock()
	j.polls++
	j.state = prev
	last := res
	j.last = &last
	j.mu.Unlock()
	j.running.Store(false)
	j.wake()

	m.count(res.Source, "cancelled")
	j.logger.Info("poll cancelled", "error", err)
	return res
}

// run times each stage of the cycle on a span; the stage durations end up
// in res.
func (m *Manager) run(ctx context.Context, j *job, res *PollResult) error {
	ctx, span := tracing.Start(ctx, "poll")
	span.SetAttr("endpoint", j.cfg.Endpoint)
	defer func() {
		span.End()
		res.StagesMs = span.Stages()
		span.Log(ctx, j.logger)
	}()

	_, fetch := tracing.Start(ctx, "fetch")
	payload, err := j.fetcher.Fetch(ctx, j.cfg.Endpoint, source.FetchOptions{
		Headers: j.cfg.Headers,
		Timeout: m.cfg.FetchTimeout,
		Retries: m.cfg.FetchRetries,
	})
	fetch.End()
	if err != nil {
		return fmt.Errorf("fetching: %w", err)
	}

	_, adapt := tracing.Start(ctx, "adapt")
	candidates, warnings := j.adapter.Adapt(payload)
	adapt.End()
	res.Fetched = len(candidates)
	res.Warnings = len(warnings)
	for _, w := range warnings {
		j.logger.Debug("adapter dropped item", "index", w.Index, "reason", w.Reason)
	}
	if len(candidates) == 0 && len(warnings) > 0 {
		return fmt.Errorf("adapting: all %d items dropped, first: %s", len(warnings), warnings[0].Reason)
	}

	if len(candidates) > 0 {
		ictx, ingest := tracing.Start(ctx, "ingest")
		res.Ingest = m.ingester.Ingest(ictx, candidates)
		ingest.End()
	}
	return nil
}

func (m *Manager) count(name, result string) {
	if m.metrics != nil {
		m.metrics.PollsTotal.WithLabelValues(name, result).Inc()
	}
}

func (m *Manager) lookup(name string) (*job, error) {
	j, ok := m.jobs[name]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", name, apperrors.ErrSourceNotFound)
	}
	if !j.cfg.Enabled {
		return nil, fmt.Errorf("source %q: %w", name, apperrors.ErrSourceDisabled)
	}
	return j, nil
}

// PollNow polls one source immediately. A poll already in flight for the
// source makes this a skip rather than a second fetch.
func (m *Manager) PollNow(ctx context.Context, name string) (PollResult, error) {
	j, err := m.lookup(name)
	if err != nil {
		return PollResult{}, err
	}
	return m.poll(ctx, j), nil
}

// PollAll polls every enabled source concurrently. Results are ordered by
// source name; individual failures are reported in the results.
func (m *Manager) PollAll(ctx context.Context) []PollResult {
	enabled := make([]*job, 0, len(m.order))
	for _, name := range m.order {
		if j := m.jobs[name]; j.cfg.Enabled {
			enabled = append(enabled, j)
		}
	}
	results := make([]PollResult, len(enabled))
	var g errgroup.Group
	for i, j := range enabled {
		g.Go(func() error {
			results[i] = m.poll(ctx, j)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Status returns one job's snapshot.
func (m *Manager) Status(name string) (JobStatus, error) {
	j, ok := m.jobs[name]
	if !ok {
		return JobStatus{}, fmt.Errorf("source %q: %w", name, apperrors.ErrSourceNotFound)
	}
	return j.snapshot(m.cfg.DegradedThreshold), nil
}

// Statuses returns every job's snapshot ordered by source name.
func (m *Manager) Statuses() []JobStatus {
	out := make([]JobStatus, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.jobs[name].snapshot(m.cfg.DegradedThreshold))
	}
	return out
}

// Degraded lists enabled sources whose consecutive failures reached the
// degraded threshold.
func (m *Manager) Degraded() []string {
	var out []string
	for _, st := range m.Statuses() {
		if st.Degraded {
			out = append(out, st.Source)
		}
	}
	return out
}

// Sources returns the registry the manager was built from.
func (m *Manager) Sources() *source.Registry { return m.registry }
