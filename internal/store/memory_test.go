package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newEvent(id, title string, ingested time.Time) *event.Event {
	return &event.Event{
		ID:          id,
		Source:      "github",
		Title:       title,
		PublishedAt: ingested,
		IngestedAt:  ingested,
		ContentHash: event.ContentHash("github", title, ""),
	}
}

func TestAdmit_DuplicateIDRejected(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, err := m.Admit(ctx, newEvent("a", "first", base), 72*time.Hour)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = m.Admit(ctx, newEvent("a", "different title", base), 72*time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Title)
	assert.Equal(t, event.StatusPending, got.Status)
}

func TestAdmit_ContentHashWithinLookback(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	ok, _ := m.Admit(ctx, newEvent("a", "outage", base), time.Hour)
	require.True(t, ok)

	ok, _ = m.Admit(ctx, newEvent("b", "outage", base.Add(30*time.Minute)), time.Hour)
	assert.False(t, ok, "same content within lookback")

	ok, _ = m.Admit(ctx, newEvent("c", "outage", base.Add(2*time.Hour)), time.Hour)
	assert.True(t, ok, "same content beyond lookback")
}

func TestAdmit_ConcurrentIdenticalIDAdmitsOnce(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var admitted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ok, err := m.Admit(ctx, newEvent("same", fmt.Sprintf("title %d", i), base), 0)
			if err == nil && ok {
				admitted.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), admitted.Load())
	c, _ := m.Counts(ctx)
	assert.Equal(t, 1, c.Total)
}

func TestGet_NotFound(t *testing.T) {
	_, err := NewMemory().Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperrors.ErrEventNotFound)
}

func TestClaimPending_OrderAndExclusivity(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: base}
	m := NewMemory(WithClock(clock.Now))

	_, _ = m.Admit(ctx, newEvent("late", "late", base.Add(time.Minute)), 0)
	_, _ = m.Admit(ctx, newEvent("early", "early", base), 0)
	_, _ = m.Admit(ctx, newEvent("mid", "mid", base.Add(30*time.Second)), 0)

	first, err := m.ClaimPending(ctx, "w1", time.Minute, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "early", first[0].ID)
	assert.Equal(t, "mid", first[1].ID)

	second, err := m.ClaimPending(ctx, "w2", time.Minute, 10)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "late", second[0].ID)

	none, err := m.ClaimPending(ctx, "w3", time.Minute, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestClaimPending_ExpiredLeaseReclaimed(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: base}
	m := NewMemory(WithClock(clock.Now))
	_, _ = m.Admit(ctx, newEvent("a", "a", base), 0)

	claimed, _ := m.ClaimPending(ctx, "w1", time.Minute, 1)
	require.Len(t, claimed, 1)

	clock.Advance(2 * time.Minute)
	reclaimed, _ := m.ClaimPending(ctx, "w2", time.Minute, 1)
	require.Len(t, reclaimed, 1)

	err := m.MarkProcessed(ctx, "a", "w1", 0.5, "a")
	assert.ErrorIs(t, err, apperrors.ErrLeaseLost)

	require.NoError(t, m.MarkProcessed(ctx, "a", "w2", 0.5, "a"))
	got, _ := m.Get(ctx, "a")
	assert.Equal(t, event.StatusProcessed, got.Status)
	require.NotNil(t, got.ImportanceScore)
	assert.InDelta(t, 0.5, *got.ImportanceScore, 1e-9)
	assert.Equal(t, "a", got.EmbeddingRef)
}

func TestRecordFailure_CapMarksFailed(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	_, _ = m.Admit(ctx, newEvent("a", "a", base), 0)

	for attempt := 1; attempt <= 3; attempt++ {
		claimed, err := m.ClaimPending(ctx, "w1", time.Minute, 1)
		require.NoError(t, err)
		require.Len(t, claimed, 1, "attempt %d", attempt)

		status, err := m.RecordFailure(ctx, "a", "w1", 3)
		require.NoError(t, err)
		if attempt < 3 {
			assert.Equal(t, event.StatusPending, status)
		} else {
			assert.Equal(t, event.StatusFailed, status)
		}
	}

	claimed, _ := m.ClaimPending(ctx, "w1", time.Minute, 1)
	assert.Empty(t, claimed)

	got, _ := m.Get(ctx, "a")
	assert.Equal(t, 3, got.EnrichmentAttempts)
	assert.Nil(t, got.ImportanceScore)
}

func TestListProcessed_FiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"c", "a", "b"} {
		_, _ = m.Admit(ctx, newEvent(id, id, base), 0)
	}
	old := newEvent("old", "old", base.Add(-48*time.Hour))
	_, _ = m.Admit(ctx, old, 0)

	claimed, _ := m.ClaimPending(ctx, "w", time.Minute, 10)
	for _, ev := range claimed {
		if ev.ID == "b" {
			continue
		}
		require.NoError(t, m.MarkProcessed(ctx, ev.ID, "w", 0.1, ev.ID))
	}

	got, err := m.ListProcessed(ctx, base.Add(-time.Hour))
	require.NoError(t, err)
	ids := make([]string, 0, len(got))
	for _, ev := range got {
		ids = append(ids, ev.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)

	counts, _ := m.Counts(ctx)
	assert.Equal(t, event.Counts{Pending: 1, Processed: 3, Total: 4}, counts)
}

func TestRequeueProcessed_ReturnsEventsToPending(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, id := range []string{"a", "b", "c"} {
		_, _ = m.Admit(ctx, newEvent(id, id, base), 0)
	}
	claimed, _ := m.ClaimPending(ctx, "w", time.Minute, 10)
	require.Len(t, claimed, 3)
	require.NoError(t, m.MarkProcessed(ctx, "a", "w", 0.4, "a"))
	require.NoError(t, m.MarkProcessed(ctx, "b", "w", 0.6, "b"))
	status, err := m.RecordFailure(ctx, "c", "w", 1)
	require.NoError(t, err)
	require.Equal(t, event.StatusFailed, status)

	n, err := m.RequeueProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	counts, _ := m.Counts(ctx)
	assert.Equal(t, event.Counts{Pending: 2, Failed: 1, Total: 3}, counts)
	got, err := m.Get(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, got.EmbeddingRef)
	assert.Zero(t, got.EnrichmentAttempts)

	again, err := m.ClaimPending(ctx, "w2", time.Minute, 10)
	require.NoError(t, err)
	assert.Len(t, again, 2, "requeued events are claimable again")
}
