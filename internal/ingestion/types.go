// Package ingestion defines the outcome of admitting event candidates and
// the Kafka message announced for every admitted event.
package ingestion

import "time"

// AdmittedEvent is the payload published on the events-admitted topic so
// enrichment workers can pick new work up before their next tick.
type AdmittedEvent struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	IngestedAt time.Time `json:"ingested_at"`
}

// ItemError explains why one candidate of a batch was rejected.
type ItemError struct {
	Index  int               `json:"index"`
	ID     string            `json:"id,omitempty"`
	Fields map[string]string `json:"fields"`
}

// Result counts what happened to a batch. Accepted + Duplicates + Rejected
// always equals the batch size.
type Result struct {
	Accepted   int         `json:"accepted"`
	Duplicates int         `json:"duplicates"`
	Rejected   int         `json:"rejected"`
	Errors     []ItemError `json:"errors,omitempty"`
}

// Totals are the lifetime ingestion counters.
type Totals struct {
	Accepted   int64 `json:"accepted"`
	Duplicates int64 `json:"duplicates"`
	Rejected   int64 `json:"rejected"`
}
