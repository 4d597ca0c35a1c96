// Package telemetry keeps local query insights: the answer path each
// query took, how long it ran, which terms recur and which queries found
// nothing. Data stays in the project's data directory.
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Tije-csv/RAG-2.2/internal/store"
)

// LatencyBucket is one bar of the end-to-end latency histogram.
type LatencyBucket string

// Buckets cover retrieval plus generation, so they are coarse.
const (
	BucketUnder100ms LatencyBucket = "lt_100ms"
	BucketUnder500ms LatencyBucket = "lt_500ms"
	BucketUnder1s    LatencyBucket = "lt_1s"
	BucketUnder5s    LatencyBucket = "lt_5s"
	BucketOver5s     LatencyBucket = "ge_5s"
)

// BucketFor maps a latency to its bucket.
func BucketFor(d time.Duration) LatencyBucket {
	switch {
	case d < 100*time.Millisecond:
		return BucketUnder100ms
	case d < 500*time.Millisecond:
		return BucketUnder500ms
	case d < time.Second:
		return BucketUnder1s
	case d < 5*time.Second:
		return BucketUnder5s
	default:
		return BucketOver5s
	}
}

// Event is one finished query.
type Event struct {
	Query string
	// Path is the answer path, "rag" or "direct".
	Path    string
	Results int
	Latency time.Duration
	Cached  bool
	Failed  bool
	Time    time.Time
}

// zeroResult reports a retrieval query that succeeded with nothing.
func (e Event) zeroResult() bool {
	return e.Path == "rag" && !e.Failed && e.Results == 0
}

// ZeroResult is a query that retrieved nothing.
type ZeroResult struct {
	Query string    `json:"query"`
	Time  time.Time `json:"time"`
}

// TermCount is a query term and how often it was seen.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Terms lowercases query and keeps the BM25 tokens of three or more
// characters, so insights line up with what the lexical index matches.
func Terms(query string) []string {
	var out []string
	for _, tok := range store.Tokenize(query) {
		if len(tok) >= 3 {
			out = append(out, tok)
		}
	}
	return out
}

// Snapshot is a point-in-time view of the in-process counters.
type Snapshot struct {
	Since        time.Time               `json:"since"`
	Total        int64                   `json:"total"`
	Failed       int64                   `json:"failed"`
	CacheHits    int64                   `json:"cache_hits"`
	Repeats      int64                   `json:"repeats"`
	ZeroResults  int64                   `json:"zero_results"`
	Paths        map[string]int64        `json:"paths"`
	Latency      map[LatencyBucket]int64 `json:"latency"`
	TopTerms     []TermCount             `json:"top_terms"`
	RecentMisses []ZeroResult            `json:"recent_misses"`
}

// RepeatRate is the share of queries seen recently in the same form.
func (s Snapshot) RepeatRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Repeats) / float64(s.Total)
}

// Config tunes a Collector. Zero values take defaults.
type Config struct {
	TopTerms      int
	RecentMisses  int
	RecentQueries int
	// FlushInterval is how often pending counts go to the store; zero
	// flushes only on Flush and Close.
	FlushInterval time.Duration
	Logger        *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.TopTerms <= 0 {
		c.TopTerms = 200
	}
	if c.RecentMisses <= 0 {
		c.RecentMisses = 50
	}
	if c.RecentQueries <= 0 {
		c.RecentQueries = 500
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Collector aggregates events in memory and flushes the increments to a
// Store. All methods are safe on a nil *Collector.
type Collector struct {
	mu sync.Mutex

	since     time.Time
	total     int64
	failed    int64
	cacheHits int64
	repeats   int64
	zeroCount int64
	paths     map[string]int64
	latency   map[LatencyBucket]int64
	terms     *lru.Cache[string, int64]
	misses    *ring[ZeroResult]
	recent    *lru.Cache[string, struct{}]

	// Increments not yet written to the store.
	pendingPaths   map[string]int64
	pendingLatency map[LatencyBucket]int64
	pendingTerms   map[string]int64
	pendingMisses  []ZeroResult

	store  Store
	logger *slog.Logger
	stop   chan struct{}
	done   chan struct{}
	closed bool
}

// New creates a Collector. A nil store keeps everything in memory.
func New(st Store, cfg Config) *Collector {
	cfg = cfg.withDefaults()
	terms, _ := lru.New[string, int64](cfg.TopTerms)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueries)

	c := &Collector{
		since:          time.Now(),
		paths:          make(map[string]int64),
		latency:        make(map[LatencyBucket]int64),
		terms:          terms,
		misses:         newRing[ZeroResult](cfg.RecentMisses),
		recent:         recent,
		pendingPaths:   make(map[string]int64),
		pendingLatency: make(map[LatencyBucket]int64),
		pendingTerms:   make(map[string]int64),
		store:          st,
		logger:         cfg.Logger,
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
	if st != nil && cfg.FlushInterval > 0 {
		go c.flushLoop(cfg.FlushInterval)
	} else {
		close(c.done)
	}
	return c
}

func (c *Collector) flushLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.Flush(context.Background()); err != nil {
				c.logger.Warn("telemetry flush failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Record counts one event.
func (c *Collector) Record(e Event) {
	if c == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.total++
	if e.Failed {
		c.failed++
	}
	if e.Cached {
		c.cacheHits++
	}
	c.paths[e.Path]++
	c.pendingPaths[e.Path]++

	bucket := BucketFor(e.Latency)
	c.latency[bucket]++
	c.pendingLatency[bucket]++

	for _, term := range Terms(e.Query) {
		n, _ := c.terms.Get(term)
		c.terms.Add(term, n+1)
		c.pendingTerms[term]++
	}

	if e.zeroResult() {
		c.zeroCount++
		miss := ZeroResult{Query: e.Query, Time: e.Time}
		c.misses.add(miss)
		c.pendingMisses = append(c.pendingMisses, miss)
	}

	key := queryKey(e.Query)
	if _, seen := c.recent.Get(key); seen {
		c.repeats++
	}
	c.recent.Add(key, struct{}{})
}

// queryKey normalizes case and whitespace before hashing.
func queryKey(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the counters since the Collector was created.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{Paths: map[string]int64{}, Latency: map[LatencyBucket]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Since:        c.since,
		Total:        c.total,
		Failed:       c.failed,
		CacheHits:    c.cacheHits,
		Repeats:      c.repeats,
		ZeroResults:  c.zeroCount,
		Paths:        make(map[string]int64, len(c.paths)),
		Latency:      make(map[LatencyBucket]int64, len(c.latency)),
		RecentMisses: c.misses.items(),
	}
	for k, v := range c.paths {
		s.Paths[k] = v
	}
	for k, v := range c.latency {
		s.Latency[k] = v
	}
	for _, term := range c.terms.Keys() {
		if n, ok := c.terms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	sortTerms(s.TopTerms)
	return s
}

// sortTerms orders by count descending, then term.
func sortTerms(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}

// Flush writes pending increments to the store. A failed flush puts its
// increments back for the next call.
func (c *Collector) Flush(ctx context.Context) error {
	if c == nil || c.store == nil {
		return nil
	}

	c.mu.Lock()
	paths, latency, terms, misses := c.pendingPaths, c.pendingLatency, c.pendingTerms, c.pendingMisses
	c.pendingPaths = make(map[string]int64)
	c.pendingLatency = make(map[LatencyBucket]int64)
	c.pendingTerms = make(map[string]int64)
	c.pendingMisses = nil
	c.mu.Unlock()

	if len(paths) == 0 && len(terms) == 0 && len(misses) == 0 {
		return nil
	}

	err := c.store.Add(ctx, Batch{
		Date:    time.Now().UTC().Format(time.DateOnly),
		Paths:   paths,
		Latency: latency,
		Terms:   terms,
		Misses:  misses,
	})
	if err != nil {
		c.mu.Lock()
		mergeCounts(c.pendingPaths, paths)
		mergeCounts(c.pendingLatency, latency)
		mergeCounts(c.pendingTerms, terms)
		c.pendingMisses = append(misses, c.pendingMisses...)
		c.mu.Unlock()
		return err
	}
	return nil
}

func mergeCounts[K comparable](dst, src map[K]int64) {
	for k, v := range src {
		dst[k] += v
	}
}

// Close stops the flush loop and flushes what is pending.
func (c *Collector) Close() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	<-c.done
	return c.Flush(context.Background())
}

// ring keeps the last n items.
type ring[T any] struct {
	buf  []T
	next int
	full bool
}

func newRing[T any](n int) *ring[T] {
	return &ring[T]{buf: make([]T, n)}
}

func (r *ring[T]) add(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

// items returns the contents oldest first.
func (r *ring[T]) items() []T {
	if !r.full {
		return append([]T(nil), r.buf[:r.next]...)
	}
	out := make([]T, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
