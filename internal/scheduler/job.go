package scheduler

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/source"
)

// State is the lifecycle state of a poll job.
type State string

const (
	StateIdle     State = "idle"
	StatePolling  State = "polling"
	StateBackoff  State = "backoff"
	StateDisabled State = "disabled"
)

// PollResult describes one poll attempt.
type PollResult struct {
	Source     string           `json:"source"`
	Skipped    bool             `json:"skipped,omitempty"`
	Reason     string           `json:"reason,omitempty"`
	Fetched    int              `json:"fetched"`
	Warnings   int              `json:"warnings"`
	Ingest     ingestion.Result `json:"ingest"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	DurationMs int64            `json:"duration_ms"`
	// StagesMs breaks DurationMs down by fetch, adapt and ingest.
	StagesMs map[string]int64 `json:"stages_ms,omitempty"`
}

// JobStatus is a point-in-time snapshot of one source's poll job.
type JobStatus struct {
	Source              string      `json:"source"`
	Enabled             bool        `json:"enabled"`
	State               State       `json:"state"`
	Degraded            bool        `json:"degraded"`
	PollInterval        string      `json:"poll_interval"`
	ConsecutiveFailures int         `json:"consecutive_failures"`
	NextRunAt           *time.Time  `json:"next_run_at,omitempty"`
	LastRunAt           *time.Time  `json:"last_run_at,omitempty"`
	LastSuccessAt       *time.Time  `json:"last_success_at,omitempty"`
	LastError           string      `json:"last_error,omitempty"`
	LastResult          *PollResult `json:"last_result,omitempty"`
	TotalPolls          int64       `json:"total_polls"`
	TotalFailures       int64       `json:"total_failures"`
}

// job is the scheduler-internal state of one source. running enforces
// single-flight; mu guards the remaining fields.
type job struct {
	cfg     source.Config
	fetcher source.Fetcher
	adapter source.Adapter
	logger  *slog.Logger

	running atomic.Bool
	// rescheduled wakes the source's loop after next changed outside it.
	rescheduled chan struct{}

	mu          sync.Mutex
	state       State
	failures    int
	next        time.Time
	lastRun     time.Time
	lastSuccess time.Time
	lastErr     string
	last        *PollResult
	polls       int64
	fails       int64
}

func newJob(cfg source.Config, f source.Fetcher, a source.Adapter) *job {
	state := StateIdle
	if !cfg.Enabled {
		state = StateDisabled
	}
	return &job{
		cfg:         cfg,
		fetcher:     f,
		adapter:     a,
		logger:      slog.Default(),
		state:       state,
		rescheduled: make(chan struct{}, 1),
	}
}

func (j *job) nextRun() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.next
}

func (j *job) setNext(t time.Time) {
	j.mu.Lock()
	j.next = t
	j.mu.Unlock()
	j.wake()
}

// wake nudges the source's loop to re-read next.
func (j *job) wake() {
	select {
	case j.rescheduled <- struct{}{}:
	default:
	}
}

func (j *job) snapshot(threshold int) JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{
		Source:              j.cfg.Name,
		Enabled:             j.cfg.Enabled,
		State:               j.state,
		Degraded:            j.cfg.Enabled && threshold > 0 && j.failures >= threshold,
		PollInterval:        j.cfg.PollInterval.String(),
		ConsecutiveFailures: j.failures,
		LastError:           j.lastErr,
		TotalPolls:          j.polls,
		TotalFailures:       j.fails,
		NextRunAt:           timePtr(j.next),
		LastRunAt:           timePtr(j.lastRun),
		LastSuccessAt:       timePtr(j.lastSuccess),
	}
	if j.last != nil {
		last := *j.last
		st.LastResult = &last
	}
	return st
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
