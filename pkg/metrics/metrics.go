// Package metrics defines the Prometheus collectors used across the
// newsfeed platform and exposes an HTTP handler for scraping. Collectors
// live on a private registry so several instances can coexist in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the platform.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	PollsTotal          *prometheus.CounterVec
	PollDuration        *prometheus.HistogramVec
	SourceFailures      *prometheus.GaugeVec
	EventsIngestedTotal *prometheus.CounterVec

	EnrichmentTotal    *prometheus.CounterVec
	EnrichmentDuration prometheus.Histogram

	RetrievalLatency      *prometheus.HistogramVec
	RetrievalResultsCount prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter

	CircuitBreakerState *prometheus.GaugeVec
}

// New creates all collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		PollsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsfeed_polls_total",
				Help: "Source polls by result (success, failure, skipped, cancelled).",
			},
			[]string{"source", "result"},
		),
		PollDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsfeed_poll_duration_seconds",
				Help:    "Duration of a full fetch, adapt and ingest cycle per source.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"source"},
		),
		SourceFailures: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "newsfeed_source_consecutive_failures",
				Help: "Consecutive failed polls per source.",
			},
			[]string{"source"},
		),
		EventsIngestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsfeed_events_ingested_total",
				Help: "Ingestion outcomes (accepted, duplicate, rejected) per source.",
			},
			[]string{"source", "outcome"},
		),
		EnrichmentTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newsfeed_enrichment_total",
				Help: "Enrichment attempts by outcome (processed, retried, failed, lease_lost).",
			},
			[]string{"outcome"},
		),
		EnrichmentDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "newsfeed_enrichment_duration_seconds",
				Help:    "Time to embed, score and promote one event.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		RetrievalLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newsfeed_retrieval_latency_seconds",
				Help:    "Ranked retrieval latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		RetrievalResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "newsfeed_retrieval_results_count",
				Help:    "Number of events returned per ranked retrieval.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 1000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "newsfeed_cache_hits_total",
				Help: "Total number of retrieval cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "newsfeed_cache_misses_total",
				Help: "Total number of retrieval cache misses.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.PollsTotal,
		m.PollDuration,
		m.SourceFailures,
		m.EventsIngestedTotal,
		m.EnrichmentTotal,
		m.EnrichmentDuration,
		m.RetrievalLatency,
		m.RetrievalResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
