// Command loadtest drives concurrent query traffic at an embedding server
// and reports throughput, latency percentiles and status codes per endpoint.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8000 -concurrency 20 -duration 30s
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	// RPS caps the total request rate; zero means unthrottled.
	RPS     float64
	Targets []string
}

// endpointStats accumulates results for one endpoint.
type endpointStats struct {
	mu          sync.Mutex
	latencies   []time.Duration
	statusCodes map[int]int64
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64

	mu        sync.Mutex
	endpoints map[string]*endpointStats
}

func NewStats() *Stats {
	return &Stats{endpoints: make(map[string]*endpointStats)}
}

func (s *Stats) endpoint(path string) *endpointStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.endpoints[path]
	if !ok {
		e = &endpointStats{
			latencies:   make([]time.Duration, 0, 10000),
			statusCodes: make(map[int]int64),
		}
		s.endpoints[path] = e
	}
	return e
}

func (s *Stats) RecordRequest(path string, duration time.Duration, statusCode int, cacheHit bool, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	if statusCode >= 200 && statusCode < 300 {
		s.successCount.Add(1)
	} else {
		s.errorCount.Add(1)
	}
	if cacheHit {
		s.cacheHits.Add(1)
	}

	e := s.endpoint(path)
	e.mu.Lock()
	e.latencies = append(e.latencies, duration)
	e.statusCodes[statusCode]++
	e.mu.Unlock()
}

// defaultTargets mixes every query endpoint, a few requests that miss the
// vocabulary, and an occasional plot.
var defaultTargets = []string{
	"/similar?character=ross&topn=5",
	"/similar?character=monica&topn=10",
	"/similarity?character1=rachel&character2=ross",
	"/similarity?character1=joey&character2=chandler",
	"/traits?character=phoebe",
	"/match?name=chandler",
	"/analogy?positive_character=ross&negative_character=rachel&positive=monica",
	"/odd_one_out?characters=ross,rachel,gunther",
	"/odd_one_out?characters=monica,chandler,joey,janice",
	"/visualize?character1=ross&character2=rachel&character3=joey",
	"/similar?character=ugly_naked_guy",
	"/visualize_image?character1=ross&character2=rachel&character3=monica",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8000", "base URL of the embedding service")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	rps := flag.Float64("rps", 0, "total requests per second, 0 for unthrottled")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		RPS:         *rps,
		Targets:     defaultTargets,
	}

	color.New(color.FgCyan, color.Bold).Println("=== Embedding API Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	if cfg.RPS > 0 {
		fmt.Printf("Rate limit:  %.0f req/s\n", cfg.RPS)
	}
	fmt.Printf("Endpoints:   %d\n", len(cfg.Targets))
	fmt.Println()

	fmt.Print("Running")
	stats := runLoadTest(context.Background(), cfg, func() { fmt.Print(".") })
	fmt.Println(" done!")
	fmt.Println()

	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

// runLoadTest sends requests from cfg.Concurrency workers until cfg.Duration
// elapses. tick is called every few seconds as a progress signal.
func runLoadTest(ctx context.Context, cfg Config, tick func()) *Stats {
	stats := NewStats()
	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), max(1, cfg.Concurrency))
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Duration)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < cfg.Concurrency; w++ {
		g.Go(func() error {
			next := w
			for {
				if err := limiter.Wait(gctx); err != nil {
					return nil
				}
				path := cfg.Targets[next%len(cfg.Targets)]
				next++

				req, err := http.NewRequestWithContext(gctx, http.MethodGet, cfg.BaseURL+path, nil)
				if err != nil {
					return fmt.Errorf("creating request: %w", err)
				}
				start := time.Now()
				resp, err := client.Do(req)
				took := time.Since(start)
				if gctx.Err() != nil {
					return nil
				}
				if err != nil {
					stats.RecordRequest(endpointOf(path), took, 0, false, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()
				stats.RecordRequest(endpointOf(path), took, resp.StatusCode, resp.Header.Get("X-Cache") == "HIT", nil)
			}
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if tick != nil {
					tick()
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	return stats
}

func endpointOf(target string) string {
	for i := range target {
		if target[i] == '?' {
			return target[:i]
		}
	}
	return target
}

// printReport writes the summary and reports whether any request completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errs := stats.errorCount.Load()

	color.New(color.FgCyan, color.Bold).Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %s\n", color.GreenString("%d", success))
	fmt.Fprintf(w, "Non-2xx/Errors:  %s\n", color.YellowString("%d", errs))
	fmt.Fprintf(w, "Cache Hits:      %d\n", stats.cacheHits.Load())
	if total > 0 {
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", float64(errs)/float64(total)*100)
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}

	stats.mu.Lock()
	paths := make([]string, 0, len(stats.endpoints))
	for p := range stats.endpoints {
		paths = append(paths, p)
	}
	stats.mu.Unlock()
	sort.Strings(paths)

	for _, p := range paths {
		e := stats.endpoint(p)
		e.mu.Lock()
		latencies := slices.Clone(e.latencies)
		codes := make(map[int]int64, len(e.statusCodes))
		for c, n := range e.statusCodes {
			codes[c] = n
		}
		e.mu.Unlock()
		if len(latencies) == 0 {
			continue
		}
		slices.Sort(latencies)

		fmt.Fprintln(w)
		color.New(color.Bold).Fprintf(w, "%s (%d)\n", p, len(latencies))
		fmt.Fprintf(w, "  P50 %-10s P95 %-10s P99 %-10s Max %-10s StdDev %s\n",
			percentile(latencies, 50),
			percentile(latencies, 95),
			percentile(latencies, 99),
			latencies[len(latencies)-1],
			stddev(latencies),
		)
		statuses := make([]int, 0, len(codes))
		for c := range codes {
			statuses = append(statuses, c)
		}
		sort.Ints(statuses)
		fmt.Fprint(w, "  status")
		for _, c := range statuses {
			fmt.Fprintf(w, " %d=%d", c, codes[c])
		}
		fmt.Fprintln(w)
	}

	if total == 0 {
		fmt.Fprintln(w)
		color.New(color.FgRed).Fprintln(w, "WARNING: No requests completed. Is the service running?")
		return false
	}
	return true
}

func stddev(latencies []time.Duration) time.Duration {
	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	avg := float64(sum) / float64(len(latencies))
	var sq float64
	for _, l := range latencies {
		d := float64(l) - avg
		sq += d * d
	}
	return time.Duration(math.Sqrt(sq / float64(len(latencies))))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
