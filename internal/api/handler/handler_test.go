package handler

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/api/cache"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/engine"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/internal/embedding/vocab"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixture = []vocab.Pair{
	{Token: "monica", Vector: []float32{1, 0.1, 0, 0}},
	{Token: "chandler", Vector: []float32{1, 0.12, 0.02, 0}},
	{Token: "ross", Vector: []float32{0.8, 0.5, 0.1, 0}},
	{Token: "rachel", Vector: []float32{0.7, 0.6, 0.1, 0}},
	{Token: "gunther", Vector: []float32{-1, 0.3, 0.2, 0}},
	{Token: "king", Vector: []float32{0, 0, 1, 1}},
	{Token: "queen", Vector: []float32{0, 0, 0.1, 1}},
	{Token: "man", Vector: []float32{0, 0, 1, 0}},
	{Token: "woman", Vector: []float32{0, 0, 0.1, 0}},
}

type fixtureSource struct{}

func (fixtureSource) Name() string { return "fixture" }

func (fixtureSource) Load(context.Context) ([]vocab.Pair, error) { return fixture, nil }

type eventLog struct {
	mu     sync.Mutex
	events []analytics.QueryEvent
}

func (e *eventLog) Track(ev analytics.QueryEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *eventLog) last() analytics.QueryEvent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.events[len(e.events)-1]
}

type memBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok {
		return v, nil
	}
	return nil, redis.Nil
}

func (m *memBackend) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memBackend) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

type testServer struct {
	mux     *http.ServeMux
	holder  *engine.Holder
	events  *eventLog
	metrics *metrics.Metrics
}

func newServer(t *testing.T, withCache bool) *testServer {
	t.Helper()
	holder := engine.NewHolder(fixtureSource{})
	_, err := holder.Reload(context.Background())
	require.NoError(t, err)

	ts := &testServer{
		mux:     http.NewServeMux(),
		holder:  holder,
		events:  &eventLog{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	deps := Deps{
		Vocabulary: holder,
		Query:      config.QueryConfig{DefaultTopN: 5, MatchTopN: 3, AnalogyTopN: 1, MaxTopN: 4},
		Lowercase:  true,
		Tracker:    ts.events,
		Metrics:    ts.metrics,
	}
	if withCache {
		deps.Cache = cache.New(&memBackend{data: make(map[string][]byte)}, time.Minute, nil)
	}
	New(deps).Register(ts.mux)
	return ts
}

func (ts *testServer) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRoot(t *testing.T) {
	ts := newServer(t, false)
	rec := ts.get(t, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Friends Word2Vec API"}`, rec.Body.String())
	assert.Equal(t, http.StatusNotFound, ts.get(t, "/nope").Code)
}

func TestSimilar(t *testing.T) {
	ts := newServer(t, false)
	rec := ts.get(t, "/similar?character=Monica&topn=2")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "Monica", body["Character"])
	similar := body["similar"].([]any)
	require.Len(t, similar, 2)
	first := similar[0].([]any)
	assert.Equal(t, "chandler", first[0])
	assert.InDelta(t, 99.98, first[1].(float64), 0.05)
	assert.Equal(t, "ross", similar[1].([]any)[0])

	ev := ts.events.last()
	assert.Equal(t, analytics.OpSimilar, ev.Operation)
	assert.Equal(t, []string{"monica"}, ev.Tokens)
	assert.Equal(t, 2, ev.Returned)
	assert.Equal(t, 1.0, testutil.ToFloat64(ts.metrics.QueriesTotal.WithLabelValues("similar", "ok")))
}

func TestSimilarDefaultsAndClamp(t *testing.T) {
	ts := newServer(t, false)
	body := decode(t, ts.get(t, "/similar?word=ross"))
	assert.Len(t, body["similar"], 4, "default 5 clamped to max 4")

	body = decode(t, ts.get(t, "/similar?character=ross&topn=50"))
	assert.Len(t, body["similar"], 4)
}

func TestSimilarErrors(t *testing.T) {
	ts := newServer(t, false)
	tests := []struct {
		name   string
		target string
		status int
		detail string
	}{
		{"Unknown", "/similar?character=Janice", http.StatusNotFound, "'janice' not in vocabulary"},
		{"Missing", "/similar", http.StatusBadRequest, "query parameter 'character' is required"},
		{"ZeroTopN", "/similar?character=ross&topn=0", http.StatusBadRequest, "topn must be a positive integer"},
		{"BadTopN", "/similar?character=ross&topn=lots", http.StatusBadRequest, "topn must be a positive integer"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.get(t, tt.target)
			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, decode(t, rec)["detail"], tt.detail)
		})
	}
	assert.Equal(t, []string{"janice"}, ts.events.events[0].Missing)
}

func TestSimilarity(t *testing.T) {
	ts := newServer(t, false)
	rec := ts.get(t, "/similarity?character1=Monica&character2=chandler")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Monica", body["Character 1"])
	assert.Equal(t, "chandler", body["Character 2"])
	assert.InDelta(t, 99.98, body["similarity"].(float64), 0.05)

	rec = ts.get(t, "/similarity?character1=janice&character2=mike")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "'janice', 'mike' not in vocabulary", decode(t, rec)["detail"])
}

func TestTraitsAndMatch(t *testing.T) {
	ts := newServer(t, false)
	body := decode(t, ts.get(t, "/traits?character=monica&topn=2"))
	assert.Equal(t, []any{"chandler", "ross"}, body["traits"])
	assert.Equal(t, "monica", body["character"])

	body = decode(t, ts.get(t, "/match?name=Monica"))
	assert.Equal(t, "Monica", body["character"])
	assert.Len(t, body["most_similar_characters"], 3)
}

func TestAnalogy(t *testing.T) {
	ts := newServer(t, false)
	rec := ts.get(t, "/analogy?positive_character=king&negative_character=man&positive=woman")
	require.Equal(t, http.StatusOK, rec.Code)
	result := decode(t, rec)["result"].([]any)
	require.Len(t, result, 1)
	assert.Equal(t, "queen", result[0].([]any)[0])

	rec = ts.get(t, "/analogy")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.get(t, "/analogy?positive_character=king&negative_character=duke")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, decode(t, rec)["detail"], "duke")
}

func TestOddOneOut(t *testing.T) {
	ts := newServer(t, false)
	rec := ts.get(t, "/odd_one_out?characters=Monica,%20Chandler,Gunther")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "gunther", body["odd_one_out"])
	assert.Equal(t, []any{"monica", "chandler", "gunther"}, body["words"])

	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/odd_one_out?characters=monica,chandler").Code)
	assert.Equal(t, http.StatusNotFound, ts.get(t, "/odd_one_out?characters=monica,chandler,janice").Code)
}

func TestVisualize(t *testing.T) {
	ts := newServer(t, false)
	rec := ts.get(t, "/visualize?characters=ross,rachel,gunther")
	require.Equal(t, http.StatusOK, rec.Code)
	points := decode(t, rec)["points"].([]any)
	require.Len(t, points, 3)
	assert.Equal(t, "ross", points[0].(map[string]any)["token"])

	assert.Equal(t, http.StatusBadRequest, ts.get(t, "/visualize?characters=ross").Code)
}

func TestVisualizeImage(t *testing.T) {
	ts := newServer(t, false)
	rec := ts.get(t, "/visualize_image?char1=ross&char2=rachel&character3=gunther")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "\x89PNG"))

	rec = ts.get(t, "/visualize_image?character1=ross&character2=rachel&character3=janice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVocabularyInfo(t *testing.T) {
	ts := newServer(t, false)
	body := decode(t, ts.get(t, "/vocabulary"))
	assert.Equal(t, float64(len(fixture)), body["size"])
	assert.Equal(t, 4.0, body["dimension"])
	assert.Equal(t, "fixture", body["source"])
	assert.NotContains(t, body, "tokens")

	body = decode(t, ts.get(t, "/vocabulary?prefix=R&limit=1"))
	assert.Equal(t, []any{"rachel"}, body["tokens"])

	body = decode(t, ts.get(t, "/vocabulary?prefix=r"))
	assert.Equal(t, []any{"rachel", "ross"}, body["tokens"])
}

func TestUnavailableBeforeLoad(t *testing.T) {
	mux := http.NewServeMux()
	New(Deps{Vocabulary: engine.NewHolder(fixtureSource{}), Query: config.QueryConfig{DefaultTopN: 5, MatchTopN: 3, AnalogyTopN: 1, MaxTopN: 10}}).Register(mux)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/similar?character=ross", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/version", nil))
	assert.Contains(t, rec.Body.String(), `"status":"loading"`)
}

func TestCachedResponses(t *testing.T) {
	ts := newServer(t, true)
	rec := ts.get(t, "/similar?character=monica&topn=3")
	first := rec.Body.String()
	assert.False(t, ts.events.last().CacheHit)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

	rec = ts.get(t, "/similar?character=MONICA&topn=3")
	second := rec.Body.String()
	assert.True(t, ts.events.last().CacheHit)
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.JSONEq(t, strings.Replace(first, `"monica"`, `"MONICA"`, 1), second)

	ts.get(t, "/traits?character=monica&topn=3")
	assert.True(t, ts.events.last().CacheHit, "traits shares the neighbour cache entry")

	body := decode(t, ts.get(t, "/api/v1/cache/stats"))
	assert.Equal(t, 2.0, body["hits"])
}

func TestCacheEndpointsDisabled(t *testing.T) {
	ts := newServer(t, false)
	assert.JSONEq(t, `{"status":"disabled"}`, ts.get(t, "/api/v1/cache/stats").Body.String())

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestReloadEndpoint(t *testing.T) {
	ts := newServer(t, false)
	before, err := ts.holder.Current()
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	ts.mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reload", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "reloaded", body["status"])
	assert.NotEqual(t, before.Version, body["version"])

	assert.Equal(t, http.StatusMethodNotAllowed, ts.get(t, "/api/v1/admin/reload").Code)
}

func TestWriteJSONUnencodableBody(t *testing.T) {
	h := New(Deps{})
	rec := httptest.NewRecorder()
	h.writeJSON(rec, http.StatusOK, map[string]float64{"similarity": math.NaN()})

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "failed to encode response", decode(t, rec)["detail"])
}

func TestHelpAndVersion(t *testing.T) {
	ts := newServer(t, false)
	body := decode(t, ts.get(t, "/help"))
	assert.Contains(t, body["endpoints"], "/version")

	body = decode(t, ts.get(t, "/version"))
	assert.Equal(t, "0.1-beta", body["version"])
	assert.Equal(t, "ready", body["status"])
}
