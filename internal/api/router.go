package api

import (
	"net/http"
	"time"

	"github.com/rowles/inverted-index/pkg/health"
	"github.com/rowles/inverted-index/pkg/metrics"
	"github.com/rowles/inverted-index/pkg/middleware"
	"github.com/rowles/inverted-index/pkg/ratelimit"
)

// RouterOptions tunes the middleware chain.
type RouterOptions struct {
	// Metrics records request counts and latency; nil disables it.
	Metrics *metrics.Metrics
	// Limiter rejects clients over their request budget; nil disables it.
	Limiter *ratelimit.Limiter
	// Timeout bounds each request; zero means none.
	Timeout time.Duration
}

// NewRouter builds the daemon's HTTP handler.
//
// Route table:
//
//	GET    /api/v1/terms/{term}   → posting list of term
//	POST   /api/v1/postings       → add a document's terms
//	GET    /health/live           → liveness
//	GET    /health/ready          → readiness (store reachability)
//
// Middleware chain (outermost first):
//
//	RequestID → Trace → Metrics → RateLimit → Timeout → mux
func NewRouter(h *Handler, checker *health.Checker, opts RouterOptions) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/terms/{term...}", h.Lookup)
	mux.HandleFunc("POST /api/v1/postings", h.AddPostings)

	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if opts.Timeout > 0 {
		chain = middleware.Timeout(opts.Timeout)(chain)
	}
	if opts.Limiter != nil {
		chain = middleware.RateLimit(opts.Limiter)(chain)
	}
	if opts.Metrics != nil {
		chain = middleware.Metrics(opts.Metrics)(chain)
	}
	chain = middleware.Trace(chain)
	chain = middleware.RequestID(chain)

	return chain
}
