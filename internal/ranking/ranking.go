// Package ranking orders processed events by a hybrid of semantic
// relevancy and exponentially decaying recency.
//
//	recency  = exp(-decay_param * age_days)
//	combined = alpha * relevancy + (1 - alpha) * recency
//
// Rank is pure: identical inputs and the same now always give the same
// ordering.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/errors"
)

const day = 24 * time.Hour

// Request holds the retrieval parameters.
type Request struct {
	Limit      int     `json:"limit"`
	DaysBack   float64 `json:"days_back"`
	Alpha      float64 `json:"alpha"`
	DecayParam float64 `json:"decay_param"`
}

// DefaultRequest builds a Request from the configured defaults.
func DefaultRequest(cfg config.RankingConfig) Request {
	return Request{
		Limit:      cfg.DefaultLimit,
		DaysBack:   cfg.DefaultDaysBack,
		Alpha:      cfg.DefaultAlpha,
		DecayParam: cfg.DefaultDecayParam,
	}
}

// Validate checks parameter ranges. A non-positive maxLimit disables the
// upper bound on Limit.
func (r Request) Validate(maxLimit int) error {
	switch {
	case r.Limit <= 0:
		return apperrors.Invalid("limit must be positive")
	case maxLimit > 0 && r.Limit > maxLimit:
		return apperrors.Invalid("limit must not exceed %d", maxLimit)
	case r.DaysBack < 0 || math.IsNaN(r.DaysBack):
		return apperrors.Invalid("days_back must be non-negative")
	case r.Alpha < 0 || r.Alpha > 1 || math.IsNaN(r.Alpha):
		return apperrors.Invalid("alpha must be within [0, 1]")
	case r.DecayParam < 0 || math.IsNaN(r.DecayParam):
		return apperrors.Invalid("decay_param must be non-negative")
	}
	return nil
}

// Cutoff is the oldest publication time the request admits.
func (r Request) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(r.DaysBack * float64(day)))
}

// Scored is a ranked event with its score components.
type Scored struct {
	event.Event
	AgeDays        float64 `json:"age_days"`
	RelevancyScore float64 `json:"relevancy_score"`
	RecencyScore   float64 `json:"recency_score"`
	CombinedScore  float64 `json:"combined_score"`
}

// AgeDays is the fractional age of publishedAt at now. Future timestamps
// count as age zero.
func AgeDays(publishedAt, now time.Time) float64 {
	age := now.Sub(publishedAt)
	if age < 0 {
		return 0
	}
	return float64(age) / float64(day)
}

// Recency is exp(-decay * ageDays).
func Recency(decay, ageDays float64) float64 {
	if decay == 0 {
		return 1
	}
	return math.Exp(-decay * ageDays)
}

// Combine blends relevancy and recency. The alpha extremes return the
// matching component exactly.
func Combine(alpha, relevancy, recency float64) float64 {
	switch alpha {
	case 1:
		return relevancy
	case 0:
		return recency
	}
	return alpha*relevancy + (1-alpha)*recency
}

// Rank filters events to processed ones within req.DaysBack of now, scores
// them and returns at most req.Limit results, best first. A nil relevancy
// map scores every event 1; otherwise events absent from it score 0.
func Rank(events []event.Event, relevancy map[string]float64, req Request, now time.Time) []Scored {
	out := make([]Scored, 0, len(events))
	for _, ev := range events {
		if ev.Status != event.StatusProcessed {
			continue
		}
		age := AgeDays(ev.PublishedAt, now)
		if age > req.DaysBack {
			continue
		}
		rel := 1.0
		if relevancy != nil {
			rel = clamp01(relevancy[ev.ID])
		}
		rec := Recency(req.DecayParam, age)
		out = append(out, Scored{
			Event:          ev,
			AgeDays:        age,
			RelevancyScore: rel,
			RecencyScore:   rec,
			CombinedScore:  Combine(req.Alpha, rel, rec),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CombinedScore != b.CombinedScore {
			return a.CombinedScore > b.CombinedScore
		}
		if !a.PublishedAt.Equal(b.PublishedAt) {
			return a.PublishedAt.After(b.PublishedAt)
		}
		return a.ID < b.ID
	})
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
