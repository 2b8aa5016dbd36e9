// Package middleware provides reusable HTTP middleware for request IDs,
// Prometheus metrics, request timeouts, CORS and rate limiting.
package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/metrics"
)

// Metrics returns middleware that records HTTP request count, latency, and
// in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			duration := time.Since(start).Seconds()
			path := normalizePath(r.URL.Path)

			m.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(sw.status),
			).Inc()

			m.HTTPRequestDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
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
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// knownPaths bounds the label cardinality of the path label.
var knownPaths = map[string]struct{}{
	"/": {}, "/similar": {}, "/similarity": {}, "/traits": {}, "/match": {},
	"/analogy": {}, "/odd_one_out": {}, "/visualize": {}, "/visualize_image": {},
	"/vocabulary": {}, "/version": {}, "/help": {},
	"/health/live": {}, "/health/ready": {},
	"/api/v1/cache/stats": {}, "/api/v1/cache/invalidate": {},
	"/api/v1/analytics": {}, "/api/v1/analytics/snapshots/latest": {},
	"/api/v1/admin/reload": {},
}

// normalizePath collapses unknown paths into a single label value.
func normalizePath(path string) string {
	if _, ok := knownPaths[path]; ok {
		return path
	}
	return "other"
}
