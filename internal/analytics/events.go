// Package analytics records what the API is asked. Handlers Track a
// QueryEvent per request; the Collector batches events to its sinks (the
// in-process Aggregator and, when enabled, a Kafka topic), and the
// Aggregator turns them into usage stats.
package analytics

import "time"

// Operation names one query endpoint.
type Operation string

const (
	OpSimilar    Operation = "similar"
	OpSimilarity Operation = "similarity"
	OpTraits     Operation = "traits"
	OpMatch      Operation = "match"
	OpAnalogy    Operation = "analogy"
	OpOddOneOut  Operation = "odd_one_out"
	OpProject    Operation = "project"
)

// QueryEvent describes one answered query.
type QueryEvent struct {
	Operation Operation `json:"operation"`
	Tokens    []string  `json:"tokens"`
	Missing   []string  `json:"missing,omitempty"`
	Status    int       `json:"status"`
	Returned  int       `json:"returned"`
	LatencyUs int64     `json:"latency_us"`
	CacheHit  bool      `json:"cache_hit"`
	Version   string    `json:"version,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}
