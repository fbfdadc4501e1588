// Command iidx-loadtest drives a running daemon with a mix of posting writes
// and term lookups from concurrent workers, then prints throughput, latency
// percentiles and status code counts.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rowles/inverted-index/internal/ingest"
)

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	// WriteRatio is the fraction of requests that add postings.
	WriteRatio float64
	// MaxDocID bounds the random document IDs written.
	MaxDocID uint64
	Terms    []string
	Seed     uint64
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	writes        atomic.Int64
	lookupHits    atomic.Int64
	lookupMisses  atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
	statusCodes   map[int]*atomic.Int64
	statusCodesMu sync.Mutex
}

func NewStats() *Stats {
	return &Stats{
		latencies:   make([]time.Duration, 0, 100000),
		statusCodes: make(map[int]*atomic.Int64),
	}
}

// RecordRequest counts one request. A 404 lookup is a miss, not an error.
func (s *Stats) RecordRequest(write bool, duration time.Duration, statusCode int, err error) {
	s.totalRequests.Add(1)

	if err != nil {
		s.errorCount.Add(1)
		return
	}

	switch {
	case write && statusCode == http.StatusNoContent:
		s.writes.Add(1)
		s.successCount.Add(1)
	case !write && statusCode == http.StatusOK:
		s.lookupHits.Add(1)
		s.successCount.Add(1)
	case !write && statusCode == http.StatusNotFound:
		s.lookupMisses.Add(1)
		s.successCount.Add(1)
	default:
		s.errorCount.Add(1)
	}

	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()

	s.statusCodesMu.Lock()
	if _, ok := s.statusCodes[statusCode]; !ok {
		s.statusCodes[statusCode] = &atomic.Int64{}
	}
	s.statusCodes[statusCode].Add(1)
	s.statusCodesMu.Unlock()
}

var defaultTerms = []string{
	"cat", "dog", "mouse", "house", "tree",
	"index", "posting", "lookup", "segment", "shard",
	"kafka", "redis", "postgres", "bolt", "codec",
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "base URL of the daemon")
	concurrency := flag.Int("concurrency", 10, "number of concurrent workers")
	duration := flag.Duration("duration", 30*time.Second, "test duration")
	writeRatio := flag.Float64("write-ratio", 0.2, "fraction of requests that add postings")
	maxDoc := flag.Uint64("max-doc", 100000, "upper bound of written document IDs")
	seed := flag.Uint64("seed", uint64(time.Now().UnixNano()), "random seed")
	flag.Parse()

	cfg := Config{
		BaseURL:     *baseURL,
		Concurrency: *concurrency,
		Duration:    *duration,
		WriteRatio:  *writeRatio,
		MaxDocID:    *maxDoc,
		Terms:       defaultTerms,
		Seed:        *seed,
	}

	fmt.Println("=== Inverted Index Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Write ratio: %.2f\n", cfg.WriteRatio)
	fmt.Printf("Terms:       %d unique\n", len(cfg.Terms))
	fmt.Println()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	fmt.Print("Running")
	stats := runLoadTest(ctx, cfg, newClient(cfg.Concurrency), func() { fmt.Print(".") })
	fmt.Println(" done!")
	fmt.Println()

	if !printReport(os.Stdout, stats, cfg.Duration) {
		os.Exit(1)
	}
}

func newClient(concurrency int) *http.Client {
	return &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        concurrency * 2,
			MaxIdleConnsPerHost: concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// runLoadTest runs workers until ctx is done. tick, if set, is called every
// five seconds as a progress signal.
func runLoadTest(ctx context.Context, cfg Config, client *http.Client, tick func()) *Stats {
	stats := NewStats()
	var wg sync.WaitGroup

	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(workerID)))

			for ctx.Err() == nil {
				write := rng.Float64() < cfg.WriteRatio
				var req *http.Request
				if write {
					req = postingRequest(ctx, cfg, rng)
				} else {
					req = lookupRequest(ctx, cfg, rng)
				}

				start := time.Now()
				resp, err := client.Do(req)
				duration := time.Since(start)

				if err != nil {
					if ctx.Err() != nil {
						return
					}
					stats.RecordRequest(write, duration, 0, err)
					continue
				}
				io.Copy(io.Discard, resp.Body)
				resp.Body.Close()

				stats.RecordRequest(write, duration, resp.StatusCode, nil)
			}
		}(w)
	}

	if tick != nil {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					tick()
				}
			}
		}()
	}

	wg.Wait()
	return stats
}

func postingRequest(ctx context.Context, cfg Config, rng *rand.Rand) *http.Request {
	n := 1 + rng.IntN(3)
	event := ingest.PostingEvent{
		DocID:      rng.Uint64N(cfg.MaxDocID + 1),
		Terms:      make([]string, n),
		IngestedAt: time.Now().UTC(),
	}
	for i := range event.Terms {
		event.Terms[i] = cfg.Terms[rng.IntN(len(cfg.Terms))]
	}
	body, err := json.Marshal(event)
	if err != nil {
		panic(fmt.Sprintf("marshaling event: %v", err))
	}
	req := mustNewRequest(ctx, http.MethodPost, cfg.BaseURL+"/api/v1/postings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func lookupRequest(ctx context.Context, cfg Config, rng *rand.Rand) *http.Request {
	term := cfg.Terms[rng.IntN(len(cfg.Terms))]
	return mustNewRequest(ctx, http.MethodGet, cfg.BaseURL+"/api/v1/terms/"+url.PathEscape(term), nil)
}

func mustNewRequest(ctx context.Context, method, rawURL string, body io.Reader) *http.Request {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		panic(fmt.Sprintf("creating request: %v", err))
	}
	return req
}

// printReport writes the summary to w and reports whether any request
// completed.
func printReport(w io.Writer, stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()
	errors := stats.errorCount.Load()

	fmt.Fprintln(w, "=== Results ===")
	fmt.Fprintf(w, "Total Requests:  %d\n", total)
	fmt.Fprintf(w, "Successful:      %d\n", success)
	fmt.Fprintf(w, "Errors:          %d\n", errors)
	fmt.Fprintf(w, "Writes:          %d\n", stats.writes.Load())
	fmt.Fprintf(w, "Lookup Hits:     %d\n", stats.lookupHits.Load())
	fmt.Fprintf(w, "Lookup Misses:   %d\n", stats.lookupMisses.Load())

	if total > 0 {
		errorRate := float64(errors) / float64(total) * 100
		fmt.Fprintf(w, "Error Rate:      %.2f%%\n", errorRate)
		rps := float64(total) / duration.Seconds()
		fmt.Fprintf(w, "Requests/sec:    %.2f\n", rps)
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()

	if len(latencies) > 0 {
		slices.Sort(latencies)

		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		avg := sum / time.Duration(len(latencies))

		fmt.Fprintln(w)
		fmt.Fprintln(w, "=== Latency ===")
		fmt.Fprintf(w, "Min:    %s\n", latencies[0])
		fmt.Fprintf(w, "Avg:    %s\n", avg)
		fmt.Fprintf(w, "P50:    %s\n", percentile(latencies, 50))
		fmt.Fprintf(w, "P90:    %s\n", percentile(latencies, 90))
		fmt.Fprintf(w, "P95:    %s\n", percentile(latencies, 95))
		fmt.Fprintf(w, "P99:    %s\n", percentile(latencies, 99))
		fmt.Fprintf(w, "Max:    %s\n", latencies[len(latencies)-1])

		var sumSquared float64
		avgFloat := float64(avg)
		for _, l := range latencies {
			diff := float64(l) - avgFloat
			sumSquared += diff * diff
		}
		stddev := time.Duration(math.Sqrt(sumSquared / float64(len(latencies))))
		fmt.Fprintf(w, "StdDev: %s\n", stddev)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "=== Status Codes ===")
	stats.statusCodesMu.Lock()
	codes := make([]int, 0, len(stats.statusCodes))
	for code := range stats.statusCodes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		fmt.Fprintf(w, "  %d: %d\n", code, stats.statusCodes[code].Load())
	}
	stats.statusCodesMu.Unlock()

	if total == 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "WARNING: No requests completed. Is the daemon running?")
		return false
	}
	return true
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
