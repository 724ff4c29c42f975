// Package store persists events and implements the two atomic operations
// of the pipeline: dedup-admit (insert-if-absent keyed by id or content hash)
// and the enrichment lease (claim, complete, fail).
package store

import (
	"context"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
)

// Store is the event store shared by ingestion, enrichment and retrieval.
type Store interface {
	// Admit inserts ev as pending unless an event with the same id exists,
	// or an event with the same content hash was ingested within lookback
	// of ev.IngestedAt. A non-positive lookback compares hashes without an
	// age bound. It reports whether ev was inserted.
	Admit(ctx context.Context, ev *event.Event, lookback time.Duration) (bool, error)

	Get(ctx context.Context, id string) (*event.Event, error)

	// ClaimPending leases up to limit claimable pending events to owner,
	// oldest ingestion first.
	ClaimPending(ctx context.Context, owner string, lease time.Duration, limit int) ([]event.Event, error)

	// MarkProcessed completes a leased event. It fails with ErrLeaseLost
	// when owner no longer holds the lease.
	MarkProcessed(ctx context.Context, id, owner string, score float64, embeddingRef string) error

	// RecordFailure counts a failed enrichment attempt and releases the
	// lease. The event turns failed once attempts reach maxAttempts.
	RecordFailure(ctx context.Context, id, owner string, maxAttempts int) (event.Status, error)

	// ListProcessed returns processed events published at or after since,
	// ordered by id.
	ListProcessed(ctx context.Context, since time.Time) ([]event.Event, error)

	// RequeueProcessed returns every processed event to pending with its
	// embedding reference and attempts cleared, so enrichment embeds it
	// again. It reports how many events moved.
	RequeueProcessed(ctx context.Context) (int, error)

	Counts(ctx context.Context) (event.Counts, error)

	Ping(ctx context.Context) error
}

func sortByIngestion(evs []event.Event) {
	sort.Slice(evs, func(i, j int) bool {
		if !evs[i].IngestedAt.Equal(evs[j].IngestedAt) {
			return evs[i].IngestedAt.Before(evs[j].IngestedAt)
		}
		return evs[i].ID < evs[j].ID
	})
}
