// Loadtest fires GET requests at the balancer and reports how they were
// spread across instances, using the routed_to field of each envelope.
//
// Usage:
//
//	go run ./cmd/loadtest -url http://localhost:5000/process -requests 300 -concurrency 10
//	go run ./cmd/loadtest -requests 1000 -out summary.json
//
// The exit code is 2 when any request failed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
)

type envelope struct {
	Balancer string `json:"balancer"`
	RoutedTo string `json:"routed_to"`
	Error    string `json:"error"`
}

func fire(ctx context.Context, client *http.Client, target string, idx int) result {
	start := time.Now()
	r := result{Index: idx}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		r.Err = err
		return r
	}
	req.Header.Set("X-Forwarded-For", fmt.Sprintf("192.168.1.%d", (idx%50)+1))

	resp, err := client.Do(req)
	if err != nil {
		r.Duration = time.Since(start)
		r.Err = err
		return r
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	r.Duration = time.Since(start)
	r.StatusCode = resp.StatusCode
	if err != nil {
		r.Err = err
		return r
	}

	var env envelope
	if json.Unmarshal(body, &env) == nil && env.RoutedTo != "" {
		r.RoutedTo = env.RoutedTo
	} else {
		r.RoutedTo = resp.Header.Get("X-Backend-Server")
	}
	return r
}

func run(ctx context.Context, client *http.Client, target string, requests, concurrency int, verbose bool) *tally {
	t := newTally()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := 0; i < requests; i++ {
		g.Go(func() error {
			r := fire(gctx, client, target, i)
			t.record(r)
			if verbose {
				fmt.Printf("idx=%d routed_to=%s status=%d dur=%v err=%v\n", i, r.RoutedTo, r.StatusCode, r.Duration, r.Err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return t
}

func main() {
	var (
		target      = flag.String("url", "http://localhost:5000/process", "Target URL")
		concurrency = flag.Int("concurrency", 10, "Number of concurrent workers")
		requests    = flag.Int("requests", 100, "Total number of requests to send")
		timeout     = flag.Duration("timeout", 10*time.Second, "Per-request timeout")
		outJSON     = flag.String("out", "", "Write JSON summary to this file (optional)")
		verbose     = flag.Bool("v", false, "Verbose per-request logging to stdout")
	)
	flag.Parse()

	if *concurrency < 1 {
		*concurrency = 1
	}

	client := &http.Client{Timeout: *timeout}

	start := time.Now()
	t := run(context.Background(), client, *target, *requests, *concurrency, *verbose)
	elapsed := time.Since(start)

	printSummary(os.Stdout, t, *target, *requests, *concurrency, elapsed)

	if *outJSON != "" {
		if err := writeSummary(*outJSON, t, *target, elapsed); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write json summary: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("\nWrote JSON summary to %s\n", *outJSON)
	}

	if t.failure > 0 {
		os.Exit(2)
	}
}

func printSummary(w io.Writer, t *tally, target string, requests, concurrency int, elapsed time.Duration) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	fmt.Fprintln(w, "--- Load Test Summary ---")
	fmt.Fprintf(w, "Target: %s\n", target)
	fmt.Fprintf(w, "Requests: %d  Concurrency: %d\n", requests, concurrency)
	fmt.Fprintf(w, "Total sent: %d  Success: %d  Failure: %d\n", t.total, t.success, t.failure)
	if elapsed > 0 {
		fmt.Fprintf(w, "Duration: %v  Throughput: %.2f req/s\n", elapsed, float64(t.total)/elapsed.Seconds())
	}

	fmt.Fprintln(w, "\nStatus codes:")
	codes := make(map[string]int, len(t.statusCodes))
	for code, n := range t.statusCodes {
		codes[fmt.Sprintf("%d", code)] = n
	}
	for _, k := range sortedKeys(codes) {
		fmt.Fprintf(w, "  %s -> %d\n", k, codes[k])
	}

	fmt.Fprintln(w, "\nrouted_to distribution:")
	for _, k := range sortedKeys(t.instances) {
		s := t.instances[k]
		lat := sortedCopy(s.Latencies)
		share := 0.0
		if t.total > 0 {
			share = 100 * float64(s.Count) / float64(t.total)
		}
		fmt.Fprintf(w, "  %s -> %d (%.1f%%) success=%d failure=%d p50=%v p99=%v\n",
			k, s.Count, share, s.Success, s.Failure, percentile(lat, 0.50), percentile(lat, 0.99))
	}
}

type summary struct {
	Target        string         `json:"target"`
	Total         int            `json:"total"`
	Success       int            `json:"success"`
	Failure       int            `json:"failure"`
	DurationMS    int64          `json:"duration_ms"`
	Distribution  map[string]int `json:"distribution"`
	Spread        int            `json:"spread"`
	P50MS         float64        `json:"p50_ms"`
	P99MS         float64        `json:"p99_ms"`
	StatusCodeMap map[int]int    `json:"status_codes"`
}

func writeSummary(path string, t *tally, target string, elapsed time.Duration) error {
	dist := t.distribution()
	spread := t.spread()

	t.mutex.Lock()
	lat := sortedCopy(t.latencies)
	s := summary{
		Target:        target,
		Total:         t.total,
		Success:       t.success,
		Failure:       t.failure,
		DurationMS:    elapsed.Milliseconds(),
		Distribution:  dist,
		Spread:        spread,
		P50MS:         float64(percentile(lat, 0.50).Microseconds()) / 1000,
		P99MS:         float64(percentile(lat, 0.99).Microseconds()) / 1000,
		StatusCodeMap: t.statusCodes,
	}
	t.mutex.Unlock()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}
