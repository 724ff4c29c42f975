// Package coordinator admits event candidates into the store. It validates
// each candidate, derives its content hash, performs the atomic dedup-admit
// and announces admitted events on Kafka for the enrichment stage.
package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/metrics"
)

// DefaultLookback bounds the content-hash dedup window.
const DefaultLookback = 72 * time.Hour

// Notifier announces admitted events. *kafka.Producer satisfies it.
type Notifier interface {
	Publish(ctx context.Context, msgs ...kafka.Message) error
}

// Coordinator is safe for concurrent use by the scheduler and the HTTP
// submission path.
type Coordinator struct {
	store    store.Store
	notifier Notifier
	metrics  *metrics.Metrics
	lookback time.Duration
	now      func() time.Time
	onAdmit  func()
	logger   *slog.Logger

	accepted   atomic.Int64
	duplicates atomic.Int64
	rejected   atomic.Int64
}

type Option func(*Coordinator)

func WithNotifier(n Notifier) Option { return func(c *Coordinator) { c.notifier = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Coordinator) { c.metrics = m } }

func WithLookback(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.lookback = d
		}
	}
}

func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

// WithAdmitHook registers fn to run after a batch admitted at least one
// event. The server wires it to the enrichment pool's Nudge.
func WithAdmitHook(fn func()) Option { return func(c *Coordinator) { c.onAdmit = fn } }

func New(st store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:    st,
		lookback: DefaultLookback,
		now:      time.Now,
		logger:   slog.Default().With("component", "ingestion"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Ingest admits candidates in order. Invalid candidates are rejected
// individually; duplicates are absorbed and only counted.
func (c *Coordinator) Ingest(ctx context.Context, candidates []event.Candidate) ingestion.Result {
	var res ingestion.Result
	admitted := make([]kafka.Message, 0, len(candidates))

	for i := range candidates {
		cand := candidates[i]
		now := c.now().UTC()

		if err := validator.ValidateCandidate(&cand, now); err != nil {
			var ve *validator.ValidationError
			fields := map[string]string{"event": err.Error()}
			if errors.As(err, &ve) {
				fields = ve.Fields
			}
			res.Rejected++
			res.Errors = append(res.Errors, ingestion.ItemError{Index: i, ID: cand.ID, Fields: fields})
			c.count(cand.Source, "rejected")
			continue
		}

		ev := build(cand, now)
		ok, err := c.store.Admit(ctx, ev, c.lookback)
		if err != nil {
			c.logger.Error("admitting event failed", "id", ev.ID, "source", ev.Source, "error", err)
			res.Rejected++
			res.Errors = append(res.Errors, ingestion.ItemError{
				Index:  i,
				ID:     ev.ID,
				Fields: map[string]string{"event": "store unavailable"},
			})
			c.count(ev.Source, "rejected")
			continue
		}
		if !ok {
			res.Duplicates++
			c.count(ev.Source, "duplicate")
			continue
		}

		res.Accepted++
		c.count(ev.Source, "accepted")
		admitted = append(admitted, kafka.Message{
			Key:   ev.ID,
			Value: ingestion.AdmittedEvent{ID: ev.ID, Source: ev.Source, IngestedAt: ev.IngestedAt},
		})
	}

	if len(admitted) > 0 {
		c.announce(ctx, admitted)
	}
	return res
}

// announce never fails ingestion: the events are durable and workers pick
// them up on their next tick regardless.
func (c *Coordinator) announce(ctx context.Context, msgs []kafka.Message) {
	if c.notifier != nil {
		if err := c.notifier.Publish(ctx, msgs...); err != nil {
			c.logger.Warn("failed to announce admitted events", "count", len(msgs), "error", err)
		}
	}
	if c.onAdmit != nil {
		c.onAdmit()
	}
}

func (c *Coordinator) count(source, outcome string) {
	switch outcome {
	case "accepted":
		c.accepted.Add(1)
	case "duplicate":
		c.duplicates.Add(1)
	case "rejected":
		c.rejected.Add(1)
	}
	if c.metrics != nil {
		if source == "" {
			source = "unknown"
		}
		c.metrics.EventsIngestedTotal.WithLabelValues(source, outcome).Inc()
	}
}

// Totals returns lifetime counters.
func (c *Coordinator) Totals() ingestion.Totals {
	return ingestion.Totals{
		Accepted:   c.accepted.Load(),
		Duplicates: c.duplicates.Load(),
		Rejected:   c.rejected.Load(),
	}
}

func build(c event.Candidate, now time.Time) *event.Event {
	source := strings.TrimSpace(c.Source)
	title := strings.TrimSpace(c.Title)
	id := strings.TrimSpace(c.ID)
	if id == "" {
		id = uuid.NewString()
	}
	published := now
	if c.PublishedAt != nil && !c.PublishedAt.IsZero() {
		published = c.PublishedAt.UTC()
	}
	return &event.Event{
		ID:          id,
		Source:      source,
		Title:       title,
		Body:        c.Body,
		URL:         c.URL,
		PublishedAt: published,
		ContentHash: event.ContentHash(source, title, c.Body),
		Status:      event.StatusPending,
		IngestedAt:  now,
	}
}
