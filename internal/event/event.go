// Package event defines the canonical news event, its processing lifecycle
// and the content hash used for deduplication.
package event

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Status is the processing state of a stored event.
type Status string

const (
	StatusPending   Status = "pending"
	StatusProcessed Status = "processed"
	StatusFailed    Status = "failed"
)

// Event is a single ingested IT-relevant item.
type Event struct {
	ID                 string    `json:"id"`
	Source             string    `json:"source"`
	Title              string    `json:"title"`
	Body               string    `json:"body"`
	URL                string    `json:"url,omitempty"`
	PublishedAt        time.Time `json:"published_at"`
	ContentHash        string    `json:"content_hash"`
	Status             Status    `json:"status"`
	ImportanceScore    *float64  `json:"importance_score,omitempty"`
	EmbeddingRef       string    `json:"embedding_ref,omitempty"`
	IngestedAt         time.Time `json:"ingested_at"`
	EnrichmentAttempts int       `json:"enrichment_attempts"`

	LeaseOwner     string    `json:"-"`
	LeaseExpiresAt time.Time `json:"-"`
}

// Text is the input handed to the embedding capability.
func (e *Event) Text() string {
	if e.Body == "" {
		return e.Title
	}
	return e.Title + "\n" + e.Body
}

// Claimable reports whether a worker may lease the event at now.
func (e *Event) Claimable(now time.Time) bool {
	return e.Status == StatusPending && (e.LeaseOwner == "" || !now.Before(e.LeaseExpiresAt))
}

// Candidate is an event as produced by an adapter or an external
// submission, before admission. It carries no lifecycle state.
type Candidate struct {
	ID          string     `json:"id,omitempty"`
	Source      string     `json:"source"`
	Title       string     `json:"title"`
	Body        string     `json:"body,omitempty"`
	URL         string     `json:"url,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Counts summarises the store by status.
type Counts struct {
	Pending   int `json:"pending"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// Add increments the bucket for s and the total.
func (c *Counts) Add(s Status) {
	switch s {
	case StatusPending:
		c.Pending++
	case StatusProcessed:
		c.Processed++
	case StatusFailed:
		c.Failed++
	}
	c.Total++
}

// ContentHash derives the dedup key from the normalised source, title and
// body, so cosmetic whitespace or case changes do not defeat deduplication.
func ContentHash(source, title, body string) string {
	h := sha256.New()
	h.Write([]byte(normalize(source)))
	h.Write([]byte{0x1f})
	h.Write([]byte(normalize(title)))
	h.Write([]byte{0x1f})
	h.Write([]byte(normalize(body)))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
