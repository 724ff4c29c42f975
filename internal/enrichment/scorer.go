// Package enrichment turns pending events into processed ones: it leases a
// batch from the store, embeds each event, upserts the vector, scores its
// importance and completes it in a single write.
package enrichment

import (
	"math"
	"regexp"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/textproc"
)

// DefaultCredibility applies to sources without a configured value.
const DefaultCredibility = 0.5

const (
	credibilityWeight = 0.4
	urgencyPerHit     = 0.08
	urgencyCap        = 0.3
	vulnIDBonus       = 0.2
	richnessWeight    = 0.1
	richnessFullLen   = 2000
)

var vulnIDPattern = regexp.MustCompile(`(?i)\b(CVE-\d{4}-\d{4,}|GHSA(-[23456789cfghjmpqrvwx]{4}){3})\b`)

var urgencyTerms = stemAll(
	"outage", "outages", "breach", "vulnerability", "exploit", "critical", "urgent",
	"incident", "downtime", "degraded", "ransomware", "emergency",
	"compromised", "attack", "malware", "zeroday", "disruption", "leak",
)

func stemAll(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[textproc.Stem(w)] = struct{}{}
	}
	return set
}

// Scorer computes importance_score in [0, 1] from source credibility,
// urgency vocabulary, vulnerability identifiers and body length.
type Scorer struct {
	credibility map[string]float64
	fallback    float64
}

// NewScorer copies credibility. A fallback outside [0, 1] is replaced by
// DefaultCredibility.
func NewScorer(credibility map[string]float64, fallback float64) *Scorer {
	if fallback <= 0 || fallback > 1 {
		fallback = DefaultCredibility
	}
	c := make(map[string]float64, len(credibility))
	for k, v := range credibility {
		c[k] = v
	}
	return &Scorer{credibility: c, fallback: fallback}
}

func (s *Scorer) Credibility(source string) float64 {
	if v, ok := s.credibility[source]; ok {
		return clamp(v)
	}
	return s.fallback
}

func (s *Scorer) Score(ev *event.Event) float64 {
	text := ev.Title + "\n" + ev.Body

	hits := 0
	for term := range textproc.TermSet(text) {
		if _, ok := urgencyTerms[term]; ok {
			hits++
		}
	}

	score := s.Credibility(ev.Source) * credibilityWeight
	score += math.Min(float64(hits)*urgencyPerHit, urgencyCap)
	if vulnIDPattern.MatchString(text) {
		score += vulnIDBonus
	}
	score += math.Min(float64(len(strings.TrimSpace(ev.Body)))/richnessFullLen, 1) * richnessWeight
	return clamp(score)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
