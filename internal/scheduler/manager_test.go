package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/source"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeFetcher struct {
	mu      sync.Mutex
	err     error
	payload json.RawMessage
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeFetcher) Fetch(ctx context.Context, _ string, _ source.FetchOptions) (source.Payload, error) {
	f.calls.Add(1)
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return source.Payload{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return source.Payload{}, f.err
	}
	if f.payload != nil {
		return source.Payload{JSON: f.payload}, nil
	}
	return source.Payload{JSON: json.RawMessage(`{"incidents":[{"id":"1","title":"API outage"},{"id":"2","title":"Resolved"}]}`)}, nil
}

type recordingIngester struct {
	mu      sync.Mutex
	batches [][]event.Candidate
}

func (r *recordingIngester) Ingest(_ context.Context, c []event.Candidate) ingestion.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, c)
	return ingestion.Result{Accepted: len(c)}
}

func (r *recordingIngester) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func staticSource(name string, enabled bool) source.Config {
	return source.Config{Name: name, Enabled: enabled, PollInterval: 5 * time.Minute, Adapter: "generic", Fetcher: "static"}
}

func newManager(t *testing.T, fetchers map[string]*fakeFetcher, cfg config.SchedulerConfig, opts ...Option) (*Manager, *recordingIngester) {
	t.Helper()
	cfgs := make([]source.Config, 0, len(fetchers))
	for name := range fetchers {
		cfgs = append(cfgs, staticSource(name, true))
	}
	reg, err := source.NewRegistry(cfgs)
	require.NoError(t, err)
	ing := &recordingIngester{}
	opts = append(opts, WithFetcherFactory(func(c source.Config) (source.Fetcher, error) {
		return fetchers[c.Name], nil
	}))
	m, err := NewManager(reg, ing, cfg, opts...)
	require.NoError(t, err)
	return m, ing
}

var schedCfg = config.SchedulerConfig{
	BackoffInitial:    30 * time.Second,
	BackoffMax:        4 * time.Minute,
	DegradedThreshold: 3,
}

func TestPollNow_Success(t *testing.T) {
	f := &fakeFetcher{}
	m, ing := newManager(t, map[string]*fakeFetcher{"status": f}, schedCfg, WithMetrics(metrics.New()))

	res, err := m.PollNow(context.Background(), "status")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, 2, res.Fetched)
	assert.Equal(t, 2, res.Ingest.Accepted)
	assert.Empty(t, res.Error)
	assert.Equal(t, 1, ing.count())

	st, err := m.Status("status")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Equal(t, int64(1), st.TotalPolls)
	require.NotNil(t, st.LastSuccessAt)
	require.NotNil(t, st.LastResult)
	assert.Contains(t, res.StagesMs, "fetch")
	assert.Contains(t, res.StagesMs, "adapt")
	assert.Contains(t, res.StagesMs, "ingest")
}

func TestPollNow_UnknownAndDisabled(t *testing.T) {
	reg, err := source.NewRegistry([]source.Config{staticSource("off", false)})
	require.NoError(t, err)
	m, err := NewManager(reg, &recordingIngester{}, schedCfg)
	require.NoError(t, err)

	_, err = m.PollNow(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrSourceNotFound)

	_, err = m.PollNow(context.Background(), "off")
	assert.ErrorIs(t, err, apperrors.ErrSourceDisabled)

	st, err := m.Status("off")
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, st.State)
	assert.False(t, st.Enabled)
}

func TestPoll_SingleFlight(t *testing.T) {
	f := &fakeFetcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	m, ing := newManager(t, map[string]*fakeFetcher{"slow": f}, schedCfg)

	done := make(chan PollResult, 1)
	go func() {
		res, _ := m.PollNow(context.Background(), "slow")
		done <- res
	}()
	<-f.entered

	skipped, err := m.PollNow(context.Background(), "slow")
	require.NoError(t, err)
	assert.True(t, skipped.Skipped)
	assert.Equal(t, "already running", skipped.Reason)

	st, _ := m.Status("slow")
	assert.Equal(t, StatePolling, st.State)

	close(f.release)
	first := <-done
	assert.False(t, first.Skipped)
	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, 1, ing.count())
}

func TestPoll_BackoffGrowsAndDegrades(t *testing.T) {
	clk := &clock{t: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)}
	f := &fakeFetcher{}
	f.setErr(&source.FetchError{Kind: source.KindHTTP, Status: 503, Endpoint: "x", Err: errors.New("unavailable")})
	m, ing := newManager(t, map[string]*fakeFetcher{"flaky": f}, schedCfg, WithClock(clk.Now))

	wantDelays := []time.Duration{30 * time.Second, time.Minute, 2 * time.Minute, 4 * time.Minute, 4 * time.Minute}
	for i, want := range wantDelays {
		res, err := m.PollNow(context.Background(), "flaky")
		require.NoError(t, err)
		assert.NotEmpty(t, res.Error)

		st, _ := m.Status("flaky")
		assert.Equal(t, StateBackoff, st.State)
		assert.Equal(t, i+1, st.ConsecutiveFailures)
		require.NotNil(t, st.NextRunAt)
		assert.Equal(t, want, st.NextRunAt.Sub(clk.Now()), "failure %d", i+1)
		assert.Equal(t, i+1 >= 3, st.Degraded, "failure %d", i+1)
		assert.True(t, st.Enabled, "failures never disable a source")
	}
	assert.Equal(t, []string{"flaky"}, m.Degraded())
	assert.Zero(t, ing.count())

	f.setErr(nil)
	_, err := m.PollNow(context.Background(), "flaky")
	require.NoError(t, err)
	st, _ := m.Status("flaky")
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.False(t, st.Degraded)
	assert.Equal(t, 5*time.Minute, st.NextRunAt.Sub(clk.Now()))
	assert.Empty(t, st.LastError)
	assert.Empty(t, m.Degraded())
}

func TestPoll_AdaptFailureCountsAsFailure(t *testing.T) {
	f := &fakeFetcher{payload: json.RawMessage(`{"unexpected": true}`)}
	m, _ := newManager(t, map[string]*fakeFetcher{"odd": f}, schedCfg)

	res, err := m.PollNow(context.Background(), "odd")
	require.NoError(t, err)
	assert.Contains(t, res.Error, "adapting")
	st, _ := m.Status("odd")
	assert.Equal(t, 1, st.ConsecutiveFailures)
}

func TestPollAll_SourceIsolation(t *testing.T) {
	bad := &fakeFetcher{}
	bad.setErr(errors.New("connection refused"))
	good := &fakeFetcher{}
	m, ing := newManager(t, map[string]*fakeFetcher{"bad": bad, "good": good}, schedCfg)

	results := m.PollAll(context.Background())
	require.Len(t, results, 2)
	assert.Equal(t, "bad", results[0].Source)
	assert.NotEmpty(t, results[0].Error)
	assert.Equal(t, "good", results[1].Source)
	assert.Empty(t, results[1].Error)
	assert.Equal(t, 1, ing.count())

	statuses := m.Statuses()
	require.Len(t, statuses, 2)
	assert.Equal(t, 1, statuses[0].ConsecutiveFailures)
	assert.Equal(t, 0, statuses[1].ConsecutiveFailures)
	assert.Equal(t, StateIdle, statuses[1].State)
}

func TestStartStop_RunOnStart(t *testing.T) {
	f := &fakeFetcher{}
	cfg := schedCfg
	cfg.RunOnStart = true
	m, ing := newManager(t, map[string]*fakeFetcher{"a": f}, cfg)

	m.Start(context.Background())
	assert.True(t, m.Running())
	require.Eventually(t, func() bool { return ing.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	m.Stop()
	assert.False(t, m.Running())
	assert.Equal(t, int32(1), f.calls.Load(), "next poll is a full interval away")
}

func TestStart_WithoutRunOnStartWaitsForInterval(t *testing.T) {
	f := &fakeFetcher{}
	m, ing := newManager(t, map[string]*fakeFetcher{"a": f}, schedCfg)

	m.Start(context.Background())
	time.Sleep(50 * time.Millisecond)
	m.Stop()
	assert.Zero(t, ing.count())

	st, _ := m.Status("a")
	require.NotNil(t, st.NextRunAt)
}

func TestStop_WaitsForInFlightPoll(t *testing.T) {
	f := &fakeFetcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	cfg := schedCfg
	cfg.RunOnStart = true
	m, _ := newManager(t, map[string]*fakeFetcher{"a": f}, cfg)

	m.Start(context.Background())
	<-f.entered

	stopped := make(chan struct{})
	go func() {
		m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return after cancelling the in-flight fetch")
	}
	st, _ := m.Status("a")
	assert.Equal(t, int64(1), st.TotalPolls)
}

func pollCount(t *testing.T, m *metrics.Metrics, src, result string) float64 {
	t.Helper()
	families, err := m.Registry.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "newsfeed_polls_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["source"] == src && labels["result"] == result {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestLoop_DueRunDuringManualPollSkipsOnce(t *testing.T) {
	f := &fakeFetcher{entered: make(chan struct{}, 2), release: make(chan struct{})}
	cfg := schedCfg
	cfg.RunOnStart = true
	mx := metrics.New()
	m, ing := newManager(t, map[string]*fakeFetcher{"a": f}, cfg, WithMetrics(mx))

	manual := make(chan PollResult, 1)
	go func() {
		res, _ := m.PollNow(context.Background(), "a")
		manual <- res
	}()
	<-f.entered

	m.Start(context.Background())
	defer m.Stop()
	time.Sleep(100 * time.Millisecond)
	assert.LessOrEqual(t, pollCount(t, mx, "a", "skipped"), 1.0)

	close(f.release)
	res := <-manual
	assert.False(t, res.Skipped)
	assert.Empty(t, res.Error)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), f.calls.Load(), "the due run is not stacked behind the manual one")
	assert.Equal(t, 1, ing.count())
	assert.LessOrEqual(t, pollCount(t, mx, "a", "skipped"), 1.0)

	st, _ := m.Status("a")
	assert.Equal(t, StateIdle, st.State)
	require.NotNil(t, st.NextRunAt)
	assert.Greater(t, time.Until(*st.NextRunAt), time.Minute)
}

func TestPollNow_CallerCancelLeavesScheduleAlone(t *testing.T) {
	f := &fakeFetcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	mx := metrics.New()
	m, ing := newManager(t, map[string]*fakeFetcher{"a": f}, schedCfg, WithMetrics(mx))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan PollResult, 1)
	go func() {
		res, _ := m.PollNow(ctx, "a")
		done <- res
	}()
	<-f.entered
	cancel()

	res := <-done
	assert.Contains(t, res.Error, "context canceled")
	st, err := m.Status("a")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, st.State)
	assert.Zero(t, st.ConsecutiveFailures)
	assert.Zero(t, st.TotalFailures)
	assert.Equal(t, int64(1), st.TotalPolls)
	assert.Nil(t, st.NextRunAt)
	assert.False(t, st.Degraded)
	assert.Zero(t, ing.count())
	assert.Equal(t, 1.0, pollCount(t, mx, "a", "cancelled"))
	assert.Zero(t, pollCount(t, mx, "a", "failure"))

	close(f.release)
	res, err = m.PollNow(context.Background(), "a")
	require.NoError(t, err)
	assert.False(t, res.Skipped, "a cancelled poll releases the job")
	assert.Empty(t, res.Error)
}

func TestStart_FailingSourceDoesNotDelayOthers(t *testing.T) {
	stuck := &fakeFetcher{entered: make(chan struct{}, 1), release: make(chan struct{})}
	broken := &fakeFetcher{}
	broken.setErr(errors.New("connection refused"))
	healthy := &fakeFetcher{}
	fetchers := map[string]*fakeFetcher{"stuck": stuck, "broken": broken, "healthy": healthy}

	cfgs := make([]source.Config, 0, len(fetchers))
	for name := range fetchers {
		c := staticSource(name, true)
		c.PollInterval = 20 * time.Millisecond
		cfgs = append(cfgs, c)
	}
	reg, err := source.NewRegistry(cfgs)
	require.NoError(t, err)
	cfg := schedCfg
	cfg.RunOnStart = true
	m, err := NewManager(reg, &recordingIngester{}, cfg, WithFetcherFactory(func(c source.Config) (source.Fetcher, error) {
		return fetchers[c.Name], nil
	}))
	require.NoError(t, err)

	m.Start(context.Background())
	<-stuck.entered
	require.Eventually(t, func() bool { return healthy.calls.Load() >= 4 }, 2*time.Second, 5*time.Millisecond)
	m.Stop()

	assert.Equal(t, int32(1), stuck.calls.Load())
	assert.Equal(t, int32(1), broken.calls.Load(), "a failed source waits out its backoff")
	st, _ := m.Status("broken")
	assert.Equal(t, StateBackoff, st.State)
	st, _ = m.Status("healthy")
	assert.Zero(t, st.ConsecutiveFailures)
	assert.Equal(t, StateIdle, st.State)
}
