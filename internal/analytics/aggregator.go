package analytics

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Friends-Embedding-API/pkg/kafka"
)

const latencyWindow = 10000

// maxTrackedTokens bounds each token counter map; tokens first seen after the
// cap is reached are not counted.
const maxTrackedTokens = 10000

// Stats is the aggregated view served by the analytics endpoint.
type Stats struct {
	TotalQueries     int64               `json:"total_queries"`
	ByOperation      map[Operation]int64 `json:"by_operation"`
	NotFound         int64               `json:"not_found"`
	ClientErrors     int64               `json:"client_errors"`
	ServerErrors     int64               `json:"server_errors"`
	CacheHits        int64               `json:"cache_hits"`
	CacheMisses      int64               `json:"cache_misses"`
	AvgLatencyMs     float64             `json:"avg_latency_ms"`
	P50LatencyMs     float64             `json:"p50_latency_ms"`
	P95LatencyMs     float64             `json:"p95_latency_ms"`
	P99LatencyMs     float64             `json:"p99_latency_ms"`
	TopTokens        []TokenCount        `json:"top_tokens"`
	UnknownTokens    []TokenCount        `json:"unknown_tokens"`
	QueriesPerMinute float64             `json:"queries_per_minute"`
	Since            time.Time           `json:"since"`
}

// TokenCount is a token with how often it was queried.
type TokenCount struct {
	Token string `json:"token"`
	Count int64  `json:"count"`
}

// Aggregator folds QueryEvents into Stats. Latency percentiles cover the
// most recent latencyWindow events.
type Aggregator struct {
	mu           sync.RWMutex
	total        int64
	byOperation  map[Operation]int64
	notFound     int64
	clientErrors int64
	serverErrors int64
	cacheHits    int64
	cacheMisses  int64
	latencies    []int64
	next         int
	tokenCounts  map[string]int64
	unknown      map[string]int64
	startTime    time.Time

	logger *slog.Logger
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		byOperation: make(map[Operation]int64),
		latencies:   make([]int64, 0, latencyWindow),
		tokenCounts: make(map[string]int64),
		unknown:     make(map[string]int64),
		startTime:   time.Now().UTC(),
		logger:      slog.Default().With("component", "analytics-aggregator"),
	}
}

// Publish records a batch; it lets the Aggregator act as a Collector sink.
func (a *Aggregator) Publish(_ context.Context, events []QueryEvent) error {
	for _, e := range events {
		a.Record(e)
	}
	return nil
}

// HandleMessage decodes a Kafka query event and records it. Undecodable
// messages are logged and skipped so they do not block the partition.
func (a *Aggregator) HandleMessage(ctx context.Context, key, value []byte) error {
	event, err := kafka.DecodeJSON[QueryEvent](value)
	if err != nil {
		a.logger.Error("skipping undecodable query event", "key", string(key), "error", err)
		return nil
	}
	a.Record(event)
	return nil
}

// Record folds a single event into the aggregate.
func (a *Aggregator) Record(e QueryEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.byOperation[e.Operation]++
	switch {
	case e.Status == http.StatusNotFound:
		a.notFound++
		a.clientErrors++
	case e.Status >= 500:
		a.serverErrors++
	case e.Status >= 400:
		a.clientErrors++
	}
	if e.CacheHit {
		a.cacheHits++
	} else {
		a.cacheMisses++
	}

	if len(a.latencies) < latencyWindow {
		a.latencies = append(a.latencies, e.LatencyUs)
	} else {
		a.latencies[a.next] = e.LatencyUs
		a.next = (a.next + 1) % latencyWindow
	}

	for _, t := range e.Tokens {
		countToken(a.tokenCounts, t)
	}
	for _, t := range e.Missing {
		countToken(a.unknown, t)
	}
}

func countToken(counts map[string]int64, token string) {
	if _, ok := counts[token]; !ok && len(counts) >= maxTrackedTokens {
		return
	}
	counts[token]++
}

// Stats returns a consistent copy of the aggregate.
func (a *Aggregator) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	stats := Stats{
		TotalQueries: a.total,
		ByOperation:  make(map[Operation]int64, len(a.byOperation)),
		NotFound:     a.notFound,
		ClientErrors: a.clientErrors,
		ServerErrors: a.serverErrors,
		CacheHits:    a.cacheHits,
		CacheMisses:  a.cacheMisses,
		Since:        a.startTime,
	}
	for op, n := range a.byOperation {
		stats.ByOperation[op] = n
	}
	if len(a.latencies) > 0 {
		sorted := make([]int64, len(a.latencies))
		copy(sorted, a.latencies)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		var sum int64
		for _, l := range sorted {
			sum += l
		}
		stats.AvgLatencyMs = float64(sum) / float64(len(sorted)) / 1000
		stats.P50LatencyMs = float64(percentile(sorted, 50)) / 1000
		stats.P95LatencyMs = float64(percentile(sorted, 95)) / 1000
		stats.P99LatencyMs = float64(percentile(sorted, 99)) / 1000
	}
	stats.TopTokens = topN(a.tokenCounts, 10)
	stats.UnknownTokens = topN(a.unknown, 10)
	if elapsed := time.Since(a.startTime).Minutes(); elapsed > 0 {
		stats.QueriesPerMinute = float64(a.total) / elapsed
	}
	return stats
}

func percentile(sorted []int64, pct int) int64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (pct * len(sorted)) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func topN(counts map[string]int64, n int) []TokenCount {
	result := make([]TokenCount, 0, len(counts))
	for token, count := range counts {
		result = append(result, TokenCount{Token: token, Count: count})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Count != result[j].Count {
			return result[i].Count > result[j].Count
		}
		return result[i].Token < result[j].Token
	})
	if len(result) > n {
		result = result[:n]
	}
	return result
}
