// Package validator checks event candidates before admission and reports
// per-field problems.
package validator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
)

const (
	maxTitleLength  = 1024
	maxBodyLength   = 1 << 20
	maxIDLength     = 255
	maxSourceLength = 128
	// FutureSkew is how far ahead of now a published_at may lie.
	FutureSkew = time.Hour
)

// ValidationError holds per-field validation failure messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return strings.Join(parts, "; ")
}

// ValidateCandidate returns a *ValidationError when c cannot be admitted.
func ValidateCandidate(c *event.Candidate, now time.Time) error {
	errs := make(map[string]string)

	source := strings.TrimSpace(c.Source)
	if source == "" {
		errs["source"] = "source is required"
	} else if len(source) > maxSourceLength {
		errs["source"] = fmt.Sprintf("source must be at most %d characters", maxSourceLength)
	}

	title := strings.TrimSpace(c.Title)
	if title == "" {
		errs["title"] = "title is required"
	} else if len(title) > maxTitleLength {
		errs["title"] = fmt.Sprintf("title must be at most %d characters", maxTitleLength)
	}

	if len(c.Body) > maxBodyLength {
		errs["body"] = fmt.Sprintf("body must be at most %d bytes", maxBodyLength)
	}
	if len(c.ID) > maxIDLength {
		errs["id"] = fmt.Sprintf("id must be at most %d characters", maxIDLength)
	}
	if c.PublishedAt != nil && c.PublishedAt.After(now.Add(FutureSkew)) {
		errs["published_at"] = "published_at is more than 1h in the future"
	}

	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}
