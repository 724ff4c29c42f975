package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
)

// Memory is an in-process Store. A single mutex makes Admit and
// ClaimPending atomic; reads copy events out so callers never share state
// with the store.
type Memory struct {
	mu     sync.Mutex
	byID   map[string]*event.Event
	byHash map[string]time.Time
	now    func() time.Time
}

var _ Store = (*Memory)(nil)

// Option configures a Memory store.
type Option func(*Memory)

// WithClock overrides the clock used for lease expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		byID:   make(map[string]*event.Event),
		byHash: make(map[string]time.Time),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Admit(_ context.Context, ev *event.Event, lookback time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[ev.ID]; ok {
		return false, nil
	}
	if seen, ok := m.byHash[ev.ContentHash]; ok {
		if lookback <= 0 || ev.IngestedAt.Sub(seen) <= lookback {
			return false, nil
		}
	}
	stored := *ev
	stored.Status = event.StatusPending
	m.byID[stored.ID] = &stored
	if seen, ok := m.byHash[stored.ContentHash]; !ok || stored.IngestedAt.After(seen) {
		m.byHash[stored.ContentHash] = stored.IngestedAt
	}
	return true, nil
}

func (m *Memory) Get(_ context.Context, id string) (*event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("getting event %s: %w", id, apperrors.ErrEventNotFound)
	}
	out := *ev
	return &out, nil
}

func (m *Memory) ClaimPending(_ context.Context, owner string, lease time.Duration, limit int) ([]event.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	claimable := make([]*event.Event, 0)
	for _, ev := range m.byID {
		if ev.Claimable(now) {
			claimable = append(claimable, ev)
		}
	}
	sort.Slice(claimable, func(i, j int) bool {
		if !claimable[i].IngestedAt.Equal(claimable[j].IngestedAt) {
			return claimable[i].IngestedAt.Before(claimable[j].IngestedAt)
		}
		return claimable[i].ID < claimable[j].ID
	})
	if len(claimable) > limit {
		claimable = claimable[:limit]
	}
	out := make([]event.Event, 0, len(claimable))
	for _, ev := range claimable {
		ev.LeaseOwner = owner
		ev.LeaseExpiresAt = now.Add(lease)
		out = append(out, *ev)
	}
	return out, nil
}

// leased returns the event if owner holds its lease. Callers hold m.mu.
func (m *Memory) leased(id, owner string) (*event.Event, error) {
	ev, ok := m.byID[id]
	if !ok {
		return nil, fmt.Errorf("event %s: %w", id, apperrors.ErrEventNotFound)
	}
	if ev.Status != event.StatusPending || ev.LeaseOwner != owner {
		return nil, fmt.Errorf("event %s owned by %q: %w", id, ev.LeaseOwner, apperrors.ErrLeaseLost)
	}
	return ev, nil
}

func (m *Memory) MarkProcessed(_ context.Context, id, owner string, score float64, embeddingRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, err := m.leased(id, owner)
	if err != nil {
		return err
	}
	s := score
	ev.ImportanceScore = &s
	ev.EmbeddingRef = embeddingRef
	ev.Status = event.StatusProcessed
	ev.LeaseOwner = ""
	ev.LeaseExpiresAt = time.Time{}
	return nil
}

func (m *Memory) RecordFailure(_ context.Context, id, owner string, maxAttempts int) (event.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, err := m.leased(id, owner)
	if err != nil {
		return "", err
	}
	ev.EnrichmentAttempts++
	if ev.EnrichmentAttempts >= maxAttempts {
		ev.Status = event.StatusFailed
	}
	ev.LeaseOwner = ""
	ev.LeaseExpiresAt = time.Time{}
	return ev.Status, nil
}

func (m *Memory) ListProcessed(_ context.Context, since time.Time) ([]event.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Event, 0)
	for _, ev := range m.byID {
		if ev.Status == event.StatusProcessed && !ev.PublishedAt.Before(since) {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) RequeueProcessed(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, ev := range m.byID {
		if ev.Status != event.StatusProcessed {
			continue
		}
		ev.Status = event.StatusPending
		ev.EmbeddingRef = ""
		ev.EnrichmentAttempts = 0
		n++
	}
	return n, nil
}

func (m *Memory) Counts(_ context.Context) (event.Counts, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var c event.Counts
	for _, ev := range m.byID {
		c.Add(ev.Status)
	}
	return c, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
