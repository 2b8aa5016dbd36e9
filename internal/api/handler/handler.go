// Package handler serves the query API over HTTP. Each endpoint reads the
// live vocabulary snapshot once, so a reload mid-request never mixes two
// vocabularies in one answer.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/api/cache"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/engine"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/middleware"
)

// Vocabulary is the view of engine.Holder the handler needs.
type Vocabulary interface {
	Current() (*engine.Snapshot, error)
	Reload(ctx context.Context) (*engine.Snapshot, error)
}

// Tracker receives one event per answered query.
type Tracker interface {
	Track(event analytics.QueryEvent)
}

// Deps are the collaborators of a Handler. Cache, Tracker and Metrics may be
// nil.
type Deps struct {
	Vocabulary Vocabulary
	Query      config.QueryConfig
	Lowercase  bool
	Cache      *cache.QueryCache
	Tracker    Tracker
	Metrics    *metrics.Metrics
}

// Handler serves the embedding query API.
type Handler struct {
	vocab     Vocabulary
	query     config.QueryConfig
	lowercase bool
	cache     *cache.QueryCache
	tracker   Tracker
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New builds a Handler from d.
func New(d Deps) *Handler {
	return &Handler{
		vocab:     d.Vocabulary,
		query:     d.Query,
		lowercase: d.Lowercase,
		cache:     d.Cache,
		tracker:   d.Tracker,
		metrics:   d.Metrics,
		logger:    slog.Default().With("component", "query-handler"),
	}
}

// Register mounts every endpoint on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /version", h.Version)
	mux.HandleFunc("GET /help", h.Help)
	mux.HandleFunc("GET /similar", h.Similar)
	mux.HandleFunc("GET /similarity", h.Similarity)
	mux.HandleFunc("GET /traits", h.Traits)
	mux.HandleFunc("GET /match", h.Match)
	mux.HandleFunc("GET /analogy", h.Analogy)
	mux.HandleFunc("GET /odd_one_out", h.OddOneOut)
	mux.HandleFunc("GET /visualize", h.Visualize)
	mux.HandleFunc("GET /visualize_image", h.VisualizeImage)
	mux.HandleFunc("GET /vocabulary", h.VocabularyInfo)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("POST /api/v1/admin/reload", h.Reload)
}

// call tracks one query from parameter parsing to response.
type call struct {
	h       *Handler
	w       http.ResponseWriter
	r       *http.Request
	op      analytics.Operation
	start   time.Time
	tokens  []string
	version string
	hit     bool
}

func (h *Handler) begin(w http.ResponseWriter, r *http.Request, op analytics.Operation) *call {
	return &call{h: h, w: w, r: r, op: op, start: time.Now()}
}

// snapshot returns the live vocabulary and remembers its version.
func (c *call) snapshot() (*engine.Snapshot, error) {
	snap, err := c.h.vocab.Current()
	if err != nil {
		return nil, err
	}
	c.version = snap.Version
	return snap, nil
}

func (c *call) ok(body any, returned int) {
	c.record(http.StatusOK, returned, nil)
	c.cacheHeader()
	c.h.writeJSON(c.w, http.StatusOK, body)
}

func (c *call) okPNG(img []byte) {
	c.record(http.StatusOK, 1, nil)
	c.cacheHeader()
	c.w.Header().Set("Content-Type", "image/png")
	c.w.Header().Set("Content-Length", strconv.Itoa(len(img)))
	c.w.WriteHeader(http.StatusOK)
	c.w.Write(img)
}

// cacheHeader reports HIT or MISS in X-Cache when caching is on.
func (c *call) cacheHeader() {
	if c.h.cache == nil {
		return
	}
	if c.hit {
		c.w.Header().Set("X-Cache", "HIT")
	} else {
		c.w.Header().Set("X-Cache", "MISS")
	}
}

func (c *call) fail(err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(c.r.Context())
	switch {
	case status >= 500:
		log.Error("query failed", "operation", c.op, "tokens", c.tokens, "error", err)
	default:
		log.Debug("query rejected", "operation", c.op, "tokens", c.tokens, "status", status, "error", err)
	}
	c.record(status, 0, apperrors.MissingTokens(err))
	c.h.writeError(c.w, status, apperrors.Detail(err))
}

func (c *call) record(status, returned int, missing []string) {
	elapsed := time.Since(c.start)
	if m := c.h.metrics; m != nil {
		m.QueriesTotal.WithLabelValues(string(c.op), resultLabel(status)).Inc()
		m.QueryLatency.WithLabelValues(string(c.op)).Observe(elapsed.Seconds())
		if status == http.StatusOK {
			m.QueryResultsCount.WithLabelValues(string(c.op)).Observe(float64(returned))
		}
	}
	if c.h.tracker != nil {
		c.h.tracker.Track(analytics.QueryEvent{
			Operation: c.op,
			Tokens:    c.tokens,
			Missing:   missing,
			Status:    status,
			Returned:  returned,
			LatencyUs: elapsed.Microseconds(),
			CacheHit:  c.hit,
			Version:   c.version,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(c.r.Context()),
		})
	}
}

func resultLabel(status int) string {
	switch {
	case status == http.StatusOK:
		return "ok"
	case status == http.StatusNotFound:
		return "not_found"
	case status == http.StatusBadRequest:
		return "invalid"
	case status == http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}

// normalize folds a user-supplied token the way the vocabulary was folded.
func (h *Handler) normalize(token string) string {
	token = strings.TrimSpace(token)
	if h.lowercase {
		return strings.ToLower(token)
	}
	return token
}

// splitList parses a comma-separated parameter, dropping empty items.
func (h *Handler) splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if t := h.normalize(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// param returns the first non-empty value among names.
func param(q url.Values, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(q.Get(n)); v != "" {
			return v
		}
	}
	return ""
}

func required(q url.Values, names ...string) (string, error) {
	if v := param(q, names...); v != "" {
		return v, nil
	}
	return "", apperrors.InvalidInputf("query parameter '%s' is required", names[0])
}

// topN parses the topn parameter, falling back to def and clamping to the
// configured ceiling.
func (h *Handler) topN(q url.Values, def int) (int, error) {
	raw := q.Get("topn")
	if raw == "" {
		return min(def, h.query.MaxTopN), nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.InvalidInputf("topn must be a positive integer")
	}
	return min(n, h.query.MaxTopN), nil
}

// writeJSON encodes before writing the header so an unencodable body becomes
// a 500 rather than an empty response.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("failed to encode response", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"detail":"failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(append(body, '\n')); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, detail string) {
	h.writeJSON(w, status, map[string]string{"detail": detail})
}
