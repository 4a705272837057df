// Command loadtest drives POST /api/v1/sequence with synthetic candidate
// pools and reports throughput, latency percentiles, cache hit rate and the
// share of searches that found no path.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:8080 -concurrency 16 -duration 30s -candidates 200
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var vocabulary = []string{
	"crown", "ember", "tide", "shadow", "lantern", "thorn", "raven", "marrow",
	"orchard", "frost", "hollow", "kestrel", "ivory", "cinder", "gossamer", "dusk",
	"blood", "silver", "oath", "storm", "quiet", "fallow", "pewter", "juniper",
}

type Config struct {
	BaseURL     string
	Concurrency int
	Duration    time.Duration
	Candidates  int
	Beats       int
	MaxLength   int
}

type Stats struct {
	totalRequests atomic.Int64
	successCount  atomic.Int64
	errorCount    atomic.Int64
	cacheHits     atomic.Int64
	noResult      atomic.Int64
	relaxed       atomic.Int64
	latencies     []time.Duration
	latenciesMu   sync.Mutex
}

type sequenceResponse struct {
	BestPath  []string `json:"best_path"`
	BestScore *float64 `json:"best_score"`
	Relaxed   bool     `json:"relaxed"`
	CacheHit  bool     `json:"cache_hit"`
}

func (s *Stats) Record(duration time.Duration, resp *sequenceResponse, err error) {
	s.totalRequests.Add(1)
	if err != nil {
		s.errorCount.Add(1)
		return
	}
	s.successCount.Add(1)
	if resp.CacheHit {
		s.cacheHits.Add(1)
	}
	if resp.BestScore == nil {
		s.noResult.Add(1)
	}
	if resp.Relaxed {
		s.relaxed.Add(1)
	}
	s.latenciesMu.Lock()
	s.latencies = append(s.latencies, duration)
	s.latenciesMu.Unlock()
}

func main() {
	cfg := Config{}
	flag.StringVar(&cfg.BaseURL, "url", "http://localhost:8080", "base URL of the sequencer service")
	flag.IntVar(&cfg.Concurrency, "concurrency", 10, "number of concurrent workers")
	flag.DurationVar(&cfg.Duration, "duration", 30*time.Second, "test duration")
	flag.IntVar(&cfg.Candidates, "candidates", 200, "candidates per request")
	flag.IntVar(&cfg.Beats, "beats", 20, "distinct beats; fewer beats means more cache hits")
	flag.IntVar(&cfg.MaxLength, "max-length", 6, "max path length per search")
	flag.Parse()

	fmt.Println("=== Beat Sequencer Load Test ===")
	fmt.Printf("Target:      %s\n", cfg.BaseURL)
	fmt.Printf("Concurrency: %d\n", cfg.Concurrency)
	fmt.Printf("Duration:    %s\n", cfg.Duration)
	fmt.Printf("Candidates:  %d per request, %d distinct beats\n", cfg.Candidates, cfg.Beats)
	fmt.Println()

	payloads := buildPayloads(cfg)
	stats := run(cfg, payloads)
	if !report(stats, cfg.Duration) {
		os.Exit(1)
	}
}

// buildPayloads pre-encodes one request per beat. Requests carry no play id
// so the ledger never shrinks the pool between iterations.
func buildPayloads(cfg Config) [][]byte {
	rng := rand.New(rand.NewSource(42))
	payloads := make([][]byte, 0, cfg.Beats)
	for b := 0; b < cfg.Beats; b++ {
		candidates := make([]map[string]any, 0, cfg.Candidates)
		for i := 0; i < cfg.Candidates; i++ {
			words := make([]string, 2+rng.Intn(4))
			for w := range words {
				words[w] = vocabulary[rng.Intn(len(vocabulary))]
			}
			valence := rng.Float64()*2 - 1
			candidates = append(candidates, map[string]any{
				"id":   fmt.Sprintf("b%02d-c%04d", b, i),
				"text": strings.Join(words, " "),
				"features": map[string]any{
					"syllable_count": len(words) * 2,
					"valence":        valence,
				},
			})
		}
		body := map[string]any{
			"guidance": map[string]any{
				"beat_id":        fmt.Sprintf("loadtest_beat_%02d", b),
				"anchor_targets": []string{vocabulary[b%len(vocabulary)]},
				"constraints":    map[string]float64{"required_anchor_count": 1},
				"priors": map[string]float64{
					"anchor_presence":   1,
					"length_preference": 0.1,
					"emotion_alignment": 0.5,
					"target_valence":    0.3,
				},
			},
			"candidates": candidates,
			"max_length": cfg.MaxLength,
		}
		data, err := json.Marshal(body)
		if err != nil {
			panic(fmt.Sprintf("encoding payload: %v", err))
		}
		payloads = append(payloads, data)
	}
	return payloads
}

func run(cfg Config, payloads [][]byte) *Stats {
	stats := &Stats{latencies: make([]time.Duration, 0, 100000)}
	client := &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        cfg.Concurrency * 2,
			MaxIdleConnsPerHost: cfg.Concurrency * 2,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	defer cancel()

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func(next int) {
			defer wg.Done()
			for ctx.Err() == nil {
				payload := payloads[next%len(payloads)]
				next++

				start := time.Now()
				resp, err := post(ctx, client, cfg.BaseURL+"/api/v1/sequence", payload)
				if ctx.Err() != nil {
					return
				}
				stats.Record(time.Since(start), resp, err)
			}
		}(w)
	}
	wg.Wait()
	return stats
}

func post(ctx context.Context, client *http.Client, url string, payload []byte) (*sequenceResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out sequenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// report prints the summary and returns false when nothing succeeded.
func report(stats *Stats, duration time.Duration) bool {
	total := stats.totalRequests.Load()
	success := stats.successCount.Load()

	fmt.Println("=== Results ===")
	fmt.Printf("Total Requests:  %d\n", total)
	fmt.Printf("Successful:      %d\n", success)
	fmt.Printf("Errors:          %d\n", stats.errorCount.Load())
	if total > 0 {
		fmt.Printf("Requests/sec:    %.2f\n", float64(total)/duration.Seconds())
	}
	if success > 0 {
		fmt.Printf("Cache Hit Rate:  %.1f%%\n", float64(stats.cacheHits.Load())/float64(success)*100)
		fmt.Printf("No Result:       %.1f%%\n", float64(stats.noResult.Load())/float64(success)*100)
		fmt.Printf("Relaxed Retries: %d\n", stats.relaxed.Load())
	}

	stats.latenciesMu.Lock()
	latencies := slices.Clone(stats.latencies)
	stats.latenciesMu.Unlock()
	slices.Sort(latencies)

	if len(latencies) > 0 {
		var sum time.Duration
		for _, l := range latencies {
			sum += l
		}
		fmt.Println()
		fmt.Println("=== Latency ===")
		fmt.Printf("Min:    %s\n", latencies[0])
		fmt.Printf("Avg:    %s\n", sum/time.Duration(len(latencies)))
		fmt.Printf("P50:    %s\n", percentile(latencies, 50))
		fmt.Printf("P95:    %s\n", percentile(latencies, 95))
		fmt.Printf("P99:    %s\n", percentile(latencies, 99))
		fmt.Printf("Max:    %s\n", latencies[len(latencies)-1])
	}

	if success == 0 {
		fmt.Println()
		fmt.Println("WARNING: No requests succeeded. Is the service running?")
		return false
	}
	return true
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	return sorted[max(0, min(idx, len(sorted)-1))]
}
