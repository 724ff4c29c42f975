package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/postgres"
)

// Schema is applied by Postgres.Migrate.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id                  TEXT PRIMARY KEY,
		source              TEXT NOT NULL,
		title               TEXT NOT NULL,
		body                TEXT NOT NULL DEFAULT '',
		url                 TEXT NOT NULL DEFAULT '',
		published_at        TIMESTAMPTZ NOT NULL,
		content_hash        TEXT NOT NULL,
		status              TEXT NOT NULL DEFAULT 'pending',
		importance_score    DOUBLE PRECISION,
		embedding_ref       TEXT NOT NULL DEFAULT '',
		ingested_at         TIMESTAMPTZ NOT NULL,
		enrichment_attempts INT NOT NULL DEFAULT 0,
		lease_owner         TEXT NOT NULL DEFAULT '',
		lease_expires_at    TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS events_content_hash_idx ON events (content_hash, ingested_at DESC)`,
	`CREATE INDEX IF NOT EXISTS events_status_idx ON events (status, ingested_at)`,
	`CREATE INDEX IF NOT EXISTS events_published_idx ON events (published_at) WHERE status = 'processed'`,
}

const eventColumns = `id, source, title, body, url, published_at, content_hash, status,
	importance_score, embedding_ref, ingested_at, enrichment_attempts, lease_owner, lease_expires_at`

// Postgres is a Store backed by PostgreSQL. Admission serialises on a
// transaction-scoped advisory lock keyed by the content hash; claims use
// FOR UPDATE SKIP LOCKED so concurrent workers never lease the same row.
type Postgres struct {
	client *postgres.Client
	now    func() time.Time
}

var _ Store = (*Postgres)(nil)

func NewPostgres(client *postgres.Client) *Postgres {
	return &Postgres{client: client, now: time.Now}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	return p.client.Migrate(ctx, Schema...)
}

func (p *Postgres) Admit(ctx context.Context, ev *event.Event, lookback time.Duration) (bool, error) {
	admitted := false
	err := p.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ev.ContentHash); err != nil {
			return fmt.Errorf("locking content hash: %w", err)
		}

		var floor time.Time
		if lookback > 0 {
			floor = ev.IngestedAt.Add(-lookback)
		}
		var exists bool
		err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM events WHERE content_hash = $1 AND ingested_at >= $2)`,
			ev.ContentHash, floor,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking content hash: %w", err)
		}
		if exists {
			return nil
		}

		res, err := tx.ExecContext(ctx,
			`INSERT INTO events (id, source, title, body, url, published_at, content_hash, status, ingested_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)
			 ON CONFLICT (id) DO NOTHING`,
			ev.ID, ev.Source, ev.Title, ev.Body, ev.URL, ev.PublishedAt, ev.ContentHash, ev.IngestedAt,
		)
		if err != nil {
			return fmt.Errorf("inserting event: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading insert result: %w", err)
		}
		admitted = n == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return admitted, nil
}

func (p *Postgres) Get(ctx context.Context, id string) (*event.Event, error) {
	row := p.client.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM events WHERE id = $1`, id)
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("getting event %s: %w", id, apperrors.ErrEventNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting event %s: %w", id, err)
	}
	return ev, nil
}

func (p *Postgres) ClaimPending(ctx context.Context, owner string, lease time.Duration, limit int) ([]event.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	now := p.now()
	rows, err := p.client.DB.QueryContext(ctx,
		`UPDATE events SET lease_owner = $1, lease_expires_at = $2
		 WHERE id IN (
			SELECT id FROM events
			WHERE status = 'pending' AND (lease_owner = '' OR lease_expires_at <= $3)
			ORDER BY ingested_at, id
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+eventColumns,
		owner, now.Add(lease), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming pending events: %w", err)
	}
	defer rows.Close()

	out, err := scanEvents(rows)
	if err != nil {
		return nil, fmt.Errorf("claiming pending events: %w", err)
	}
	sortByIngestion(out)
	return out, nil
}

func (p *Postgres) MarkProcessed(ctx context.Context, id, owner string, score float64, embeddingRef string) error {
	res, err := p.client.DB.ExecContext(ctx,
		`UPDATE events
		 SET status = 'processed', importance_score = $3, embedding_ref = $4,
		     lease_owner = '', lease_expires_at = NULL
		 WHERE id = $1 AND status = 'pending' AND lease_owner = $2`,
		id, owner, score, embeddingRef,
	)
	if err != nil {
		return fmt.Errorf("marking event %s processed: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("marking event %s processed: %w", id, err)
	}
	if n == 0 {
		return p.leaseError(ctx, id)
	}
	return nil
}

func (p *Postgres) RecordFailure(ctx context.Context, id, owner string, maxAttempts int) (event.Status, error) {
	var status string
	err := p.client.DB.QueryRowContext(ctx,
		`UPDATE events
		 SET enrichment_attempts = enrichment_attempts + 1,
		     status = CASE WHEN enrichment_attempts + 1 >= $3 THEN 'failed' ELSE 'pending' END,
		     lease_owner = '', lease_expires_at = NULL
		 WHERE id = $1 AND status = 'pending' AND lease_owner = $2
		 RETURNING status`,
		id, owner, maxAttempts,
	).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", p.leaseError(ctx, id)
	}
	if err != nil {
		return "", fmt.Errorf("recording failure for event %s: %w", id, err)
	}
	return event.Status(status), nil
}

func (p *Postgres) leaseError(ctx context.Context, id string) error {
	var owner string
	err := p.client.DB.QueryRowContext(ctx, `SELECT lease_owner FROM events WHERE id = $1`, id).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("event %s: %w", id, apperrors.ErrEventNotFound)
	}
	if err != nil {
		return fmt.Errorf("event %s: %w", id, err)
	}
	return fmt.Errorf("event %s owned by %q: %w", id, owner, apperrors.ErrLeaseLost)
}

func (p *Postgres) ListProcessed(ctx context.Context, since time.Time) ([]event.Event, error) {
	rows, err := p.client.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE status = 'processed' AND published_at >= $1
		 ORDER BY id`,
		since,
	)
	if err != nil {
		return nil, fmt.Errorf("listing processed events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func (p *Postgres) RequeueProcessed(ctx context.Context) (int, error) {
	res, err := p.client.DB.ExecContext(ctx,
		`UPDATE events
		 SET status = 'pending', embedding_ref = '', enrichment_attempts = 0,
		     lease_owner = '', lease_expires_at = NULL
		 WHERE status = 'processed'`,
	)
	if err != nil {
		return 0, fmt.Errorf("requeueing processed events: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("requeueing processed events: %w", err)
	}
	return int(n), nil
}

func (p *Postgres) Counts(ctx context.Context) (event.Counts, error) {
	var c event.Counts
	rows, err := p.client.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM events GROUP BY status`)
	if err != nil {
		return c, fmt.Errorf("counting events: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return c, fmt.Errorf("scanning count: %w", err)
		}
		switch event.Status(status) {
		case event.StatusPending:
			c.Pending += n
		case event.StatusProcessed:
			c.Processed += n
		case event.StatusFailed:
			c.Failed += n
		}
		c.Total += n
	}
	return c, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*event.Event, error) {
	var (
		ev     event.Event
		status string
		score  sql.NullFloat64
		expiry sql.NullTime
	)
	err := row.Scan(
		&ev.ID, &ev.Source, &ev.Title, &ev.Body, &ev.URL, &ev.PublishedAt, &ev.ContentHash, &status,
		&score, &ev.EmbeddingRef, &ev.IngestedAt, &ev.EnrichmentAttempts, &ev.LeaseOwner, &expiry,
	)
	if err != nil {
		return nil, err
	}
	ev.Status = event.Status(status)
	if score.Valid {
		s := score.Float64
		ev.ImportanceScore = &s
	}
	if expiry.Valid {
		ev.LeaseExpiresAt = expiry.Time
	}
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]event.Event, error) {
	out := make([]event.Event, 0)
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, *ev)
	}
	return out, rows.Err()
}
