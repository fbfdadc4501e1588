package middleware

import (
	"net/http"

	"github.com/rowles/inverted-index/pkg/logger"
	"github.com/rowles/inverted-index/pkg/tracing"
)

// Trace opens a root span per request, keyed by the request ID, and logs the
// finished span tree at debug level. It must run inside RequestID.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracing.StartSpan(r.Context(), r.Method+" "+normalizePath(r.URL.Path), GetRequestID(r.Context()))
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttr("status", sw.status)
		span.End()
		span.Log(ctx, logger.FromContext(ctx))
	})
}
