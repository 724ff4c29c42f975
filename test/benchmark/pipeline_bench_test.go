package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/embedding"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/enrichment"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/event"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ingestion/coordinator"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/ranking"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/store"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/textproc"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/vectorstore"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var sampleTexts = []string{
	"Elevated error rates on the API",
	"Critical vulnerability CVE-2026-1234 disclosed in OpenSSL, upgrade immediately",
	"Degraded performance in us-east-1 affecting load balancers and DNS resolution",
	"Scheduled maintenance for the Kubernetes control plane",
}

func events(n int) []event.Event {
	out := make([]event.Event, n)
	for i := range out {
		out[i] = event.Event{
			ID:          fmt.Sprintf("evt-%06d", i),
			Source:      "bench",
			Title:       sampleTexts[i%len(sampleTexts)],
			PublishedAt: now.Add(-time.Duration(i) * time.Minute),
			Status:      event.StatusProcessed,
		}
	}
	return out
}

// BenchmarkRank measures hybrid ranking over candidate sets of growing size.
func BenchmarkRank(b *testing.B) {
	req := ranking.Request{Limit: 100, DaysBack: 30, Alpha: 0.7, DecayParam: 0.02}
	for _, n := range []int{100, 1000, 10000} {
		evs := events(n)
		rel := make(map[string]float64, n)
		for i, e := range evs {
			rel[e.ID] = float64(i%10) / 10
		}
		b.Run(fmt.Sprintf("events_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = ranking.Rank(evs, rel, req, now)
			}
		})
	}
}

func BenchmarkTerms(b *testing.B) {
	for i, text := range sampleTexts {
		b.Run(fmt.Sprintf("text_%d", i), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = textproc.Terms(text)
			}
		})
	}
}

func BenchmarkHashEmbed(b *testing.B) {
	e := embedding.NewHashEmbedder(256)
	ctx := context.Background()
	b.ReportAllocs()
	for b.Loop() {
		_, _ = e.Embed(ctx, sampleTexts[1])
	}
}

func BenchmarkNearestNeighbors(b *testing.B) {
	ctx := context.Background()
	e := embedding.NewHashEmbedder(256)
	for _, n := range []int{1000, 10000} {
		vs := vectorstore.NewMemory(256)
		for i, ev := range events(n) {
			vec, _ := e.Embed(ctx, fmt.Sprintf("%s %d", ev.Title, i))
			_, _ = vs.Upsert(ctx, ev.ID, vec, vectorstore.Metadata{Source: ev.Source, PublishedAt: ev.PublishedAt})
		}
		query, _ := e.Embed(ctx, "openssl vulnerability")
		b.Run(fmt.Sprintf("vectors_%d", n), func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_, _ = vs.NearestNeighbors(ctx, query, 100, vectorstore.Filter{})
			}
		})
	}
}

// BenchmarkIngest measures validate + dedup-admit throughput against the
// memory store, alternating new events and duplicates.
func BenchmarkIngest(b *testing.B) {
	coord := coordinator.New(store.NewMemory())
	ctx := context.Background()
	b.ReportAllocs()
	i := 0
	for b.Loop() {
		id := fmt.Sprintf("ing-%d", i/2)
		coord.Ingest(ctx, []event.Candidate{{ID: id, Source: "bench", Title: sampleTexts[i%len(sampleTexts)] + " " + id}})
		i++
	}
}

func BenchmarkScore(b *testing.B) {
	s := enrichment.NewScorer(map[string]float64{"bench": 0.8}, 0.5)
	ev := &event.Event{Source: "bench", Title: sampleTexts[1], Body: sampleTexts[2]}
	b.ReportAllocs()
	for b.Loop() {
		_ = s.Score(ev)
	}
}
