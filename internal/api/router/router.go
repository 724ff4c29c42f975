// Package router wires the newsfeed HTTP routes and middleware.
package router

import (
	"net/http"

	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/internal/api/handler"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/IT-Newsfeed-Platform/pkg/middleware"
)

// New builds the full HTTP handler. m may be nil.
//
// Route table:
//
//	POST   /api/v1/events                  → submit one event or a batch
//	GET    /api/v1/events                  → processed events, unranked
//	GET    /api/v1/events/ranked           → hybrid ranked retrieval
//	GET    /api/v1/admin/status            → pipeline status
//	GET    /api/v1/admin/sources           → sources with job state
//	GET    /api/v1/admin/scheduler         → scheduler jobs
//	GET    /api/v1/admin/stats             → lifetime counters
//	POST   /api/v1/admin/poll              → poll every enabled source
//	POST   /api/v1/admin/poll/{source}     → poll one source
//	POST   /api/v1/admin/cache/invalidate  → drop cached rankings
//	GET    /health/live, /health/ready     → probes
//	GET    /metrics                        → Prometheus
//
// Middleware chain (outermost first):
//
//	RequestID → Metrics → mux
//
// Event routes are additionally bounded by the request timeout, and
// submissions by the per-client rate limit.
func New(h *handler.Handler, checker *health.Checker, m *metrics.Metrics, cfg config.ServerConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	var limiter *middleware.Limiter
	if cfg.IngestRatePerSecond > 0 {
		limiter = middleware.NewLimiter(cfg.IngestRatePerSecond, cfg.IngestBurst)
	}
	bounded := middleware.Timeout(cfg.RequestTimeout)

	mux.Handle("POST /api/v1/events", middleware.RateLimit(limiter)(bounded(http.HandlerFunc(h.SubmitEvents))))
	mux.Handle("GET /api/v1/events", bounded(http.HandlerFunc(h.ListEvents)))
	mux.Handle("GET /api/v1/events/ranked", bounded(http.HandlerFunc(h.RankedEvents)))

	mux.HandleFunc("GET /api/v1/admin/status", h.AdminStatus)
	mux.HandleFunc("GET /api/v1/admin/sources", h.AdminSources)
	mux.HandleFunc("GET /api/v1/admin/scheduler", h.AdminScheduler)
	mux.HandleFunc("GET /api/v1/admin/stats", h.AdminStats)
	mux.HandleFunc("POST /api/v1/admin/poll", h.PollAll)
	mux.HandleFunc("POST /api/v1/admin/poll/{source}", h.PollSource)
	mux.HandleFunc("POST /api/v1/admin/cache/invalidate", h.InvalidateCache)

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.RequestID(chain)
	return chain
}
