package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]QueryEvent
}

func (r *recordingSink) Publish(_ context.Context, events []QueryEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, append([]QueryEvent(nil), events...))
	return nil
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.batches {
		n += len(b)
	}
	return n
}

func TestAggregatorStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(QueryEvent{Operation: OpSimilar, Tokens: []string{"monica"}, Status: 200, LatencyUs: 1000, Returned: 5})
	agg.Record(QueryEvent{Operation: OpSimilar, Tokens: []string{"monica"}, Status: 200, LatencyUs: 3000, CacheHit: true})
	agg.Record(QueryEvent{Operation: OpSimilarity, Tokens: []string{"ross", "janice"}, Missing: []string{"janice"}, Status: 404, LatencyUs: 2000})
	agg.Record(QueryEvent{Operation: OpOddOneOut, Tokens: []string{"a", "b"}, Status: 400, LatencyUs: 500})

	stats := agg.Stats()
	assert.Equal(t, int64(4), stats.TotalQueries)
	assert.Equal(t, int64(2), stats.ByOperation[OpSimilar])
	assert.Equal(t, int64(1), stats.NotFound)
	assert.Equal(t, int64(2), stats.ClientErrors)
	assert.Equal(t, int64(0), stats.ServerErrors)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, int64(3), stats.CacheMisses)
	assert.InDelta(t, 1.625, stats.AvgLatencyMs, 1e-9)
	assert.Equal(t, TokenCount{Token: "monica", Count: 2}, stats.TopTokens[0])
	assert.Equal(t, []TokenCount{{Token: "janice", Count: 1}}, stats.UnknownTokens)
}

func TestTopNBreaksTiesByToken(t *testing.T) {
	got := topN(map[string]int64{"ross": 2, "joey": 2, "phoebe": 5, "gunther": 1}, 3)
	assert.Equal(t, []TokenCount{{"phoebe", 5}, {"joey", 2}, {"ross", 2}}, got)
}

func TestLatencyWindowIsBounded(t *testing.T) {
	agg := NewAggregator()
	for i := 0; i < latencyWindow+50; i++ {
		agg.Record(QueryEvent{Operation: OpSimilar, Status: 200, LatencyUs: int64(i)})
	}
	assert.Len(t, agg.latencies, latencyWindow)
	assert.Equal(t, int64(latencyWindow+50), agg.Stats().TotalQueries)
}

func TestTokenCountsAreBounded(t *testing.T) {
	agg := NewAggregator()
	agg.Record(QueryEvent{Operation: OpSimilar, Tokens: []string{"rachel"}, Missing: []string{"gunther"}, Status: 404})
	for i := 0; i < maxTrackedTokens+50; i++ {
		tok := fmt.Sprintf("tok%d", i)
		agg.Record(QueryEvent{Operation: OpSimilar, Tokens: []string{tok}, Missing: []string{tok}, Status: 404})
	}
	agg.Record(QueryEvent{Operation: OpSimilar, Tokens: []string{"rachel"}, Missing: []string{"gunther"}, Status: 404})

	assert.Len(t, agg.tokenCounts, maxTrackedTokens)
	assert.Len(t, agg.unknown, maxTrackedTokens)
	assert.Equal(t, int64(2), agg.tokenCounts["rachel"], "known tokens keep counting past the cap")
	assert.Equal(t, int64(2), agg.unknown["gunther"])
}

func TestHandleMessage(t *testing.T) {
	agg := NewAggregator()
	value, err := json.Marshal(QueryEvent{Operation: OpAnalogy, Tokens: []string{"king"}, Status: 200})
	require.NoError(t, err)

	require.NoError(t, agg.HandleMessage(context.Background(), []byte("analogy"), value))
	require.NoError(t, agg.HandleMessage(context.Background(), nil, []byte("{not json")))
	assert.Equal(t, int64(1), agg.Stats().ByOperation[OpAnalogy])
}

func TestCollectorFlushesOnBatchSize(t *testing.T) {
	sink := &recordingSink{}
	c := NewCollector(100, 2, time.Hour, sink)
	c.Start(context.Background())
	defer c.Close()

	c.Track(QueryEvent{Operation: OpSimilar})
	c.Track(QueryEvent{Operation: OpMatch})
	assert.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)
}

func TestCollectorFlushesOnClose(t *testing.T) {
	sink := &recordingSink{}
	agg := NewAggregator()
	c := NewCollector(100, 50, time.Hour, sink, agg)
	c.Start(context.Background())

	for i := 0; i < 3; i++ {
		c.Track(QueryEvent{Operation: OpTraits, Status: 200})
	}
	c.Close()
	assert.Equal(t, 3, sink.count())
	assert.Equal(t, int64(3), agg.Stats().TotalQueries)

	c.Track(QueryEvent{Operation: OpTraits})
	c.Close()
}

func TestCollectorDropsWhenFull(t *testing.T) {
	c := NewCollector(1, 10, time.Hour)
	c.Track(QueryEvent{})
	c.Track(QueryEvent{})
	assert.Equal(t, int64(1), c.Dropped())
	c.Close()
}

func TestCollectorFlushesOnCancel(t *testing.T) {
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	c := NewCollector(100, 50, time.Hour, sink)
	c.Start(ctx)
	c.Track(QueryEvent{Operation: OpSimilar})
	c.Track(QueryEvent{Operation: OpSimilar})
	assert.Eventually(t, func() bool { return len(c.eventCh) == 0 }, time.Second, time.Millisecond)
	cancel()
	<-c.done
	assert.Equal(t, 2, sink.count())
}

func TestHandlerStats(t *testing.T) {
	agg := NewAggregator()
	agg.Record(QueryEvent{Operation: OpMatch, Tokens: []string{"rachel"}, Status: 200})

	rec := httptest.NewRecorder()
	NewHandler(agg).Stats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analytics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var stats Stats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, int64(1), stats.TotalQueries)
	assert.Equal(t, "rachel", stats.TopTokens[0].Token)
}
