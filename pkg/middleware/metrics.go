// Package middleware holds the HTTP middleware wrapped around the API mux.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rowles/inverted-index/pkg/metrics"
)

// Metrics records request count, latency and the in-flight gauge, labelled
// by route rather than raw path.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := normalizePath(r.URL.Path)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

const termsPrefix = "/api/v1/terms/"

var fixedRoutes = map[string]bool{
	"/api/v1/postings": true,
	"/health/live":     true,
	"/health/ready":    true,
}

// normalizePath maps a request path to its route so that label cardinality is
// bounded by the route table, not by the vocabulary or by scanners probing
// random paths.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, termsPrefix) && len(path) > len(termsPrefix):
		return termsPrefix + "{term}"
	case fixedRoutes[path]:
		return path
	default:
		return "other"
	}
}
