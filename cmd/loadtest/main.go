// loadtest drives the search service with concurrent queries and reports
// throughput, latency percentiles, which cache tier answered, and status
// codes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"maps"
	"math"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/pflag"

	"github.com/Adithya-Monish-Kumar-K/docrank/internal/corpus"
	"github.com/Adithya-Monish-Kumar-K/docrank/internal/searcher/handler"
)

var sampleQueries = []string{
	"vitamin d deficiency",
	"cancer cell proliferation",
	"gene expression regulation",
	"antibiotic resistance bacteria",
	"insulin signaling pathway",
	"immune response infection",
	"protein folding stability",
	"neural stem cells",
	"blood pressure treatment",
	"dna repair mechanisms",
}

// errMalformed marks a 200 response whose body is not a search response.
var errMalformed = errors.New("malformed search response")

type options struct {
	baseURL     string
	model       string
	limit       int
	concurrency int
	duration    time.Duration
	queries     []string
}

func (o options) endpoint(query string) string {
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(o.limit)}}
	if o.model != "" {
		params.Set("model", o.model)
	}
	return strings.TrimSuffix(o.baseURL, "/") + "/api/v1/search?" + params.Encode()
}

// outcome is one request. status is 0 when no response arrived.
type outcome struct {
	latency time.Duration
	status  int
	tier    string
	err     error
}

type recorder struct {
	mu       sync.Mutex
	outcomes []outcome
}

func (r *recorder) add(o outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.outcomes)
}

func main() {
	if err := run(); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flags := pflag.NewFlagSet("loadtest", pflag.ContinueOnError)
	baseURL := flags.String("url", "http://localhost:8080", "base URL of the search service")
	model := flags.String("model", "", "ranking model (empty uses the service default)")
	limit := flags.Int("limit", 10, "results per query")
	concurrency := flags.Int("concurrency", 10, "number of concurrent workers")
	duration := flags.Duration("duration", 30*time.Second, "test duration")
	queriesPath := flags.String("queries", "", "preprocessed queries file; tokens are joined into query text")
	if err := flags.Parse(os.Args[1:]); err != nil {
		return err
	}
	if *concurrency < 1 || *limit < 1 {
		return fmt.Errorf("concurrency and limit must be positive")
	}

	queries := sampleQueries
	if *queriesPath != "" {
		var err error
		if queries, err = loadQueryText(*queriesPath); err != nil {
			return err
		}
	}
	opts := options{
		baseURL:     *baseURL,
		model:       *model,
		limit:       *limit,
		concurrency: *concurrency,
		duration:    *duration,
		queries:     queries,
	}

	fmt.Printf("load test: %s, %d workers for %s over %d queries\n",
		opts.baseURL, opts.concurrency, opts.duration, len(opts.queries))

	client := &http.Client{
		Timeout: 10 * time.Second,
		Transport: &http.Transport{
			MaxIdleConnsPerHost: opts.concurrency,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), opts.duration)
	defer cancel()

	start := time.Now()
	rec := drive(ctx, opts, client)
	return summarize(rec.snapshot(), time.Since(start)).write(os.Stdout)
}

func loadQueryText(path string) ([]string, error) {
	qs, err := corpus.LoadQueries(path, corpus.FilterAll)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(qs))
	for _, q := range qs {
		if len(q.Tokens) > 0 {
			out = append(out, strings.Join(q.Tokens, " "))
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no non-empty queries in %s", path)
	}
	return out, nil
}

// drive runs workers until ctx ends. Queries are handed out round-robin
// across all workers. A request cut short by the end of the run is dropped.
func drive(ctx context.Context, opts options, client *http.Client) *recorder {
	rec := &recorder{}
	var next atomic.Int64
	var wg sync.WaitGroup
	for range opts.concurrency {
		wg.Go(func() {
			for ctx.Err() == nil {
				i := int(next.Add(1)-1) % len(opts.queries)
				o := search(ctx, client, opts.endpoint(opts.queries[i]))
				if ctx.Err() != nil {
					return
				}
				rec.add(o)
			}
		})
	}
	wg.Wait()
	return rec
}

func search(ctx context.Context, client *http.Client, endpoint string) outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return outcome{err: err}
	}
	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return outcome{latency: time.Since(start), err: err}
	}
	defer resp.Body.Close()

	o := outcome{status: resp.StatusCode}
	if resp.StatusCode == http.StatusOK {
		var body handler.SearchResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			o.err = fmt.Errorf("%w: %v", errMalformed, err)
		} else {
			o.tier = body.CacheTier
		}
	}
	io.Copy(io.Discard, resp.Body)
	o.latency = time.Since(start)
	return o
}

type latencySummary struct {
	Min, Mean, P50, P90, P95, P99, Max, StdDev time.Duration
}

type report struct {
	Elapsed   time.Duration
	Total     int
	OK        int
	Failed    int
	Malformed int
	// Tiers counts successful responses by cache tier; "miss" means the
	// service ranked the query itself.
	Tiers   map[string]int
	Status  map[int]int
	Latency latencySummary
}

func summarize(outcomes []outcome, elapsed time.Duration) report {
	r := report{
		Elapsed: elapsed,
		Total:   len(outcomes),
		Tiers:   make(map[string]int),
		Status:  make(map[int]int),
	}
	var ok []time.Duration
	for _, o := range outcomes {
		if o.status != 0 {
			r.Status[o.status]++
		}
		switch {
		case errors.Is(o.err, errMalformed):
			r.Malformed++
		case o.err != nil || o.status != http.StatusOK:
			r.Failed++
		default:
			r.OK++
			ok = append(ok, o.latency)
			tier := o.tier
			if tier == "" {
				tier = "miss"
			}
			r.Tiers[tier]++
		}
	}
	r.Latency = summarizeLatency(ok)
	return r
}

func summarizeLatency(ds []time.Duration) latencySummary {
	if len(ds) == 0 {
		return latencySummary{}
	}
	slices.Sort(ds)
	var total float64
	for _, d := range ds {
		total += float64(d)
	}
	mean := total / float64(len(ds))
	var sq float64
	for _, d := range ds {
		sq += (float64(d) - mean) * (float64(d) - mean)
	}
	return latencySummary{
		Min:    ds[0],
		Mean:   time.Duration(mean),
		P50:    nearestRank(ds, 50),
		P90:    nearestRank(ds, 90),
		P95:    nearestRank(ds, 95),
		P99:    nearestRank(ds, 99),
		Max:    ds[len(ds)-1],
		StdDev: time.Duration(math.Sqrt(sq / float64(len(ds)))),
	}
}

// nearestRank returns the p-th percentile of an ascending slice.
func nearestRank(sorted []time.Duration, p int) time.Duration {
	rank := (len(sorted)*p + 99) / 100
	return sorted[max(rank-1, 0)]
}

func (r report) write(w io.Writer) error {
	fmt.Fprintf(w, "\nrequests   %d ok, %d failed, %d malformed (%d total)\n", r.OK, r.Failed, r.Malformed, r.Total)
	if r.Elapsed > 0 {
		fmt.Fprintf(w, "throughput %.1f req/s\n", float64(r.Total)/r.Elapsed.Seconds())
	}
	if r.OK > 0 {
		l := r.Latency
		fmt.Fprintf(w, "latency    min %s  mean %s  max %s  stddev %s\n", l.Min, l.Mean, l.Max, l.StdDev)
		fmt.Fprintf(w, "           p50 %s  p90 %s  p95 %s  p99 %s\n", l.P50, l.P90, l.P95, l.P99)
		for _, tier := range slices.Sorted(maps.Keys(r.Tiers)) {
			fmt.Fprintf(w, "cache      %-6s %d (%.1f%%)\n", tier, r.Tiers[tier], float64(r.Tiers[tier])/float64(r.OK)*100)
		}
	}
	for _, code := range slices.Sorted(maps.Keys(r.Status)) {
		fmt.Fprintf(w, "status     %d: %d\n", code, r.Status[code])
	}
	if r.OK == 0 {
		return errors.New("no successful requests, is the service running?")
	}
	return nil
}
