package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func ok(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/similar", nil))

	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDPropagated(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/similar", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestTimeout(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
		time.Sleep(10 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	Timeout(20*time.Millisecond)(slow).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.JSONEq(t, `{"detail":"request timeout"}`, rec.Body.String())
}

func TestCORS(t *testing.T) {
	h := CORS(NewCORSConfig([]string{"https://friends.example"}))(http.HandlerFunc(ok))

	req := httptest.NewRequest(http.MethodOptions, "/similar", nil)
	req.Header.Set("Origin", "https://friends.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://friends.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/similar", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRateLimit(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := RateLimit(ratelimit.New(0.001, 1), m)(http.HandlerFunc(ok))

	send := func(path string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "192.0.2.7:5555"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("/similar"))
	assert.Equal(t, http.StatusTooManyRequests, send("/similar"))
	assert.Equal(t, http.StatusOK, send("/health/live"))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitedTotal))
}

func TestMetricsMiddleware(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	h := Metrics(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/similar?character=gunther", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/wp-admin", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/similar", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "other", "404")))
}

func TestAdminAuth(t *testing.T) {
	h := AdminAuth("s3cret", "/api/v1/admin", "/api/v1/cache/invalidate")(http.HandlerFunc(ok))

	send := func(method, path, header, value string) int {
		req := httptest.NewRequest(method, path, nil)
		if header != "" {
			req.Header.Set(header, value)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send(http.MethodGet, "/similar", "", ""))
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/api/v1/admin/reload", "", ""))
	assert.Equal(t, http.StatusUnauthorized, send(http.MethodPost, "/api/v1/admin/reload", "Authorization", "Bearer nope"))
	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/v1/admin/reload", "Authorization", "Bearer s3cret"))
	assert.Equal(t, http.StatusOK, send(http.MethodPost, "/api/v1/cache/invalidate", "X-Admin-Token", "s3cret"))
}

func TestAdminAuthDisabled(t *testing.T) {
	h := AdminAuth("", "/api/v1/admin")(http.HandlerFunc(ok))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reload", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
