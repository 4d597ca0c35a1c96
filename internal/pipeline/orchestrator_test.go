package pipeline

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tije-csv/RAG-2.2/internal/cache"
	"github.com/Tije-csv/RAG-2.2/internal/classify"
	"github.com/Tije-csv/RAG-2.2/internal/embed"
	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/generate"
	"github.com/Tije-csv/RAG-2.2/internal/index"
	"github.com/Tije-csv/RAG-2.2/internal/logging"
	"github.com/Tije-csv/RAG-2.2/internal/metrics"
	"github.com/Tije-csv/RAG-2.2/internal/search"
	"github.com/Tije-csv/RAG-2.2/internal/store"
	"github.com/Tije-csv/RAG-2.2/internal/telemetry"
)

const testDims = 32

// countingGenerator records every prompt it is given.
type countingGenerator struct {
	calls atomic.Int32

	mu      sync.Mutex
	prompts []string

	answer string
	err    error
	block  bool

	// started receives once per call when set; gate holds every call
	// until closed.
	started chan struct{}
	gate    chan struct{}
}

var _ generate.Generator = (*countingGenerator)(nil)

func (g *countingGenerator) Generate(ctx context.Context, prompt string, _ *generate.GenerateOptions) (string, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()

	if g.started != nil {
		g.started <- struct{}{}
	}
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if g.err != nil {
		return "", g.err
	}
	if g.answer == "" {
		return "generated answer", nil
	}
	return g.answer, nil
}

func (g *countingGenerator) Name() string { return "counting" }

func (g *countingGenerator) lastPrompt() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.prompts) == 0 {
		return ""
	}
	return g.prompts[len(g.prompts)-1]
}

// fixedClassifier always returns the same label or error.
type fixedClassifier struct {
	label classify.Label
	err   error
}

func (c fixedClassifier) Classify(context.Context, string) (classify.Classification, error) {
	return classify.Classification{Label: c.label, Confidence: 1}, c.err
}

type fixture struct {
	orch  *Orchestrator
	gen   *countingGenerator
	cache cache.Cache[QueryResponse]
	docs  *store.SQLiteDocumentStore
	tel   *telemetry.Collector
}

func newFixture(t *testing.T, gen *countingGenerator, classifier classify.Classifier, cfg Config) *fixture {
	t.Helper()

	docs, err := store.OpenDocumentStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	corpus, err := index.New(index.Config{
		Dimensions:   testDims,
		MinTrainSize: 4,
		BM25:         store.DefaultBM25Config(),
		Logger:       logging.Nop(),
	})
	require.NoError(t, err)

	qc := cache.NewMemoryCache[QueryResponse](100)
	tel := telemetry.New(nil, telemetry.Config{Logger: logging.Nop()})
	orch, err := New(Deps{
		Store:      docs,
		Corpus:     corpus,
		Retriever:  search.NewRetriever(corpus, docs, search.Config{Logger: logging.Nop()}),
		Embedder:   embed.NewStaticEmbedder(testDims),
		Generator:  gen,
		Classifier: classifier,
		Cache:      qc,
		Metrics:    metrics.New(),
		Telemetry:  tel,
		Logger:     logging.Nop(),
	}, cfg)
	require.NoError(t, err)

	return &fixture{orch: orch, gen: gen, cache: qc, docs: docs, tel: tel}
}

var sampleInputs = []store.Input{
	{Content: "Paris is the capital of France", Source: "geo/france.txt", Type: store.MediaTXT},
	{Content: "Berlin is the capital of Germany", Source: "geo/germany.txt", Type: store.MediaTXT},
	{Content: "Goroutines communicate over channels", Source: "go.md", Type: store.MediaMD},
	{Content: "The borrow checker enforces ownership in Rust", Source: "rust.md", Type: store.MediaMD},
	{Content: "Madrid is the capital of Spain", Source: "geo/spain.txt", Type: store.MediaTXT},
}

func TestProcessQuery_EndToEnd_SecondCallServedFromCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{}, fixedClassifier{label: classify.LabelFactual}, Config{})

	// Given: an ingested corpus
	added, err := f.orch.AddDocuments(ctx, sampleInputs)
	require.NoError(t, err)
	require.Equal(t, 5, added)

	// When: asking a factual question
	first, err := f.orch.ProcessQuery(ctx, "capital of France")
	require.NoError(t, err)

	// Then: the answer is grounded on retrieved documents
	assert.Equal(t, PathRAG, first.Path)
	assert.False(t, first.Cached)
	assert.Equal(t, "generated answer", first.Answer)
	require.NotEmpty(t, first.RetrievedDocs)
	assert.Equal(t, "Paris is the capital of France", first.RetrievedDocs[0].Text)
	prompt := f.gen.lastPrompt()
	assert.Contains(t, prompt, "Context: Paris is the capital of France")
	assert.Contains(t, prompt, "\n\nQuestion: capital of France\n\nAnswer based on the context provided:")

	// When: asking the same question with different spacing and case
	second, err := f.orch.ProcessQuery(ctx, "  Capital   of FRANCE ")
	require.NoError(t, err)

	// Then: the cached answer is returned without generating again
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.RetrievedDocs, second.RetrievedDocs)
	assert.Equal(t, int32(1), f.gen.calls.Load())

	stats, err := f.orch.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalQueries)
	assert.Equal(t, int64(1), stats.CacheHits)
	assert.Equal(t, 1, stats.CachedQueryCount)
}

func TestProcessQuery_FaissRedisScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{}, nil, Config{})

	// Given: a corpus of two documents
	added, err := f.orch.AddDocuments(ctx, []store.Input{
		{Content: "FAISS is a similarity search library."},
		{Content: "Redis is an in-memory cache."},
	})
	require.NoError(t, err)
	require.Equal(t, 2, added)

	// When: asking about FAISS
	first, err := f.orch.ProcessQuery(ctx, "What is FAISS?")
	require.NoError(t, err)

	// Then: the FAISS document ranks above the Redis one
	require.NotEmpty(t, first.RetrievedDocs)
	assert.Equal(t, "FAISS is a similarity search library.", first.RetrievedDocs[0].Text)
	for _, d := range first.RetrievedDocs[1:] {
		assert.LessOrEqual(t, d.Score, first.RetrievedDocs[0].Score)
	}

	// When: asking again
	second, err := f.orch.ProcessQuery(ctx, "What is FAISS?")
	require.NoError(t, err)

	// Then: the same response comes from the cache without generating
	assert.True(t, second.Cached)
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.RetrievedDocs, second.RetrievedDocs)
	assert.Equal(t, first.Path, second.Path)
	assert.Equal(t, int32(1), f.gen.calls.Load())
}

func TestProcessQuery_IngestDuringGenerationIsNotCached(t *testing.T) {
	ctx := context.Background()
	gen := &countingGenerator{started: make(chan struct{}, 2), gate: make(chan struct{})}
	f := newFixture(t, gen, nil, Config{})

	// Given: a corpus without the answer and a query stuck in generation
	_, err := f.orch.AddDocuments(ctx, []store.Input{{Content: "Redis is an in-memory cache."}})
	require.NoError(t, err)

	type result struct {
		resp *QueryResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := f.orch.ProcessQuery(ctx, "What is FAISS?")
		done <- result{resp, err}
	}()
	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("query never reached the generator")
	}

	// When: the answer is ingested before generation finishes
	added, err := f.orch.AddDocuments(ctx, []store.Input{{Content: "FAISS is a similarity search library."}})
	require.NoError(t, err)
	require.Equal(t, 1, added)
	close(gen.gate)

	var first result
	select {
	case first = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("query did not finish")
	}
	require.NoError(t, first.err)
	assert.False(t, first.resp.Cached)

	// Then: the pre-ingest answer was not cached and a repeat sees the new document
	assert.Equal(t, 0, f.cache.Len(ctx))
	second, err := f.orch.ProcessQuery(ctx, "What is FAISS?")
	require.NoError(t, err)
	assert.False(t, second.Cached)
	require.NotEmpty(t, second.RetrievedDocs)
	assert.Equal(t, "FAISS is a similarity search library.", second.RetrievedDocs[0].Text)
	assert.Equal(t, int32(2), gen.calls.Load())
}

func TestProcessQuery_EmptyCorpus(t *testing.T) {
	f := newFixture(t, &countingGenerator{}, nil, Config{})

	resp, err := f.orch.ProcessQuery(context.Background(), "anything at all")

	require.NoError(t, err)
	assert.Empty(t, resp.RetrievedDocs)
	assert.Equal(t, PathRAG, resp.Path)
	assert.Contains(t, f.gen.lastPrompt(), "Context: \n\nQuestion: anything at all")
}

func TestProcessQuery_DirectPathSkipsRetrievalAndCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{answer: "a poem"}, fixedClassifier{label: classify.LabelGenerative}, Config{})
	_, err := f.orch.AddDocuments(ctx, sampleInputs)
	require.NoError(t, err)

	// When: a generative query arrives
	resp, err := f.orch.ProcessQuery(ctx, "write a poem about Paris")

	// Then: the generator sees the raw query and nothing is cached
	require.NoError(t, err)
	assert.Equal(t, PathDirect, resp.Path)
	assert.Equal(t, "a poem", resp.Answer)
	assert.Empty(t, resp.RetrievedDocs)
	assert.Equal(t, "write a poem about Paris", f.gen.lastPrompt())
	assert.Equal(t, 0, f.cache.Len(ctx))
}

func TestProcessQuery_ClassifierFailureFallsBackToRAG(t *testing.T) {
	f := newFixture(t, &countingGenerator{}, fixedClassifier{err: errors.New("model offline")}, Config{})

	resp, err := f.orch.ProcessQuery(context.Background(), "write a poem")

	require.NoError(t, err)
	assert.Equal(t, PathRAG, resp.Path)
}

func TestProcessQuery_GenerationTimeout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{block: true}, nil, Config{GenerationTimeout: 50 * time.Millisecond})

	// When: the generator never answers
	_, err := f.orch.ProcessQuery(ctx, "capital of France")

	// Then: a typed timeout is returned and nothing is cached
	require.Error(t, err)
	assert.True(t, errors.Is(err, rerrors.ErrGenerationTimeout))
	assert.Equal(t, 0, f.cache.Len(ctx))
}

func TestProcessQuery_ProviderErrorsPropagateTyped(t *testing.T) {
	ctx := context.Background()
	rateLimited := rerrors.ProviderStatus("ollama", 429, "slow down", rerrors.ErrCodeGenerationFailed)
	f := newFixture(t, &countingGenerator{err: rateLimited}, nil, Config{})

	_, err := f.orch.ProcessQuery(ctx, "capital of France")

	assert.True(t, errors.Is(err, rerrors.ErrRateLimited))
	assert.Equal(t, 0, f.cache.Len(ctx))
	assert.Equal(t, int32(1), f.gen.calls.Load())
}

func TestProcessQuery_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := newFixture(t, &countingGenerator{block: true}, nil, Config{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.orch.ProcessQuery(ctx, "capital of France")

	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessQuery_EmptyQuery(t *testing.T) {
	f := newFixture(t, &countingGenerator{}, nil, Config{})

	_, err := f.orch.ProcessQuery(context.Background(), "  \t ")

	assert.True(t, errors.Is(err, rerrors.ErrQueryEmpty))
	assert.Equal(t, int32(0), f.gen.calls.Load())
}

func TestAddDocuments_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{}, nil, Config{})

	// Given: a batch with a duplicate and a blank entry
	batch := []store.Input{
		{Content: "same content"},
		{Content: "same content", Source: "other"},
		{Content: "   "},
	}

	// When: ingesting it twice
	first, err := f.orch.AddDocuments(ctx, batch)
	require.NoError(t, err)
	second, err := f.orch.AddDocuments(ctx, batch)
	require.NoError(t, err)

	// Then: one document exists, stored with inline defaults
	assert.Equal(t, 1, first)
	assert.Equal(t, 0, second)
	count, err := f.docs.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	doc, err := f.docs.GetByHash(ctx, "same content")
	require.NoError(t, err)
	assert.Equal(t, DefaultSource, doc.Source)
	assert.Equal(t, store.MediaText, doc.Type)
	assert.Len(t, doc.Embedding, testDims)
}

func TestAddDocuments_InvalidatesCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{}, nil, Config{})
	_, err := f.orch.AddDocuments(ctx, sampleInputs[:2])
	require.NoError(t, err)

	// Given: a cached answer
	_, err = f.orch.ProcessQuery(ctx, "capital of Spain")
	require.NoError(t, err)
	require.Equal(t, 1, f.cache.Len(ctx))

	// When: a new document arrives
	added, err := f.orch.AddDocuments(ctx, sampleInputs[4:])
	require.NoError(t, err)
	require.Equal(t, 1, added)

	// Then: the cache is empty and the next answer sees the new document
	assert.Equal(t, 0, f.cache.Len(ctx))
	resp, err := f.orch.ProcessQuery(ctx, "capital of Spain")
	require.NoError(t, err)
	assert.False(t, resp.Cached)
	assert.Equal(t, "Madrid is the capital of Spain", resp.RetrievedDocs[0].Text)
}

func TestAddDocuments_ReaddingKnownContentKeepsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{}, nil, Config{})
	_, err := f.orch.AddDocuments(ctx, sampleInputs)
	require.NoError(t, err)
	_, err = f.orch.ProcessQuery(ctx, "capital of France")
	require.NoError(t, err)

	added, err := f.orch.AddDocuments(ctx, sampleInputs[:1])

	require.NoError(t, err)
	assert.Equal(t, 0, added)
	assert.Equal(t, 1, f.cache.Len(ctx))
}

func TestStats_ReportsCorpusState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{}, nil, Config{})
	_, err := f.orch.AddDocuments(ctx, sampleInputs[:3])
	require.NoError(t, err)

	stats, err := f.orch.Stats(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, stats.DocumentCount)
	assert.Equal(t, 3, stats.IndexedDocuments)
	assert.Equal(t, 3, stats.PendingVectors)
	assert.False(t, stats.DenseTrained)
	assert.Equal(t, "static-32", stats.Embedder)
	assert.Equal(t, "counting", stats.Generator)
}

func TestNew_RejectsMismatchedEmbedder(t *testing.T) {
	docs, err := store.OpenDocumentStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = docs.Close() }()
	corpus, err := index.New(index.Config{Dimensions: 8, MinTrainSize: 4})
	require.NoError(t, err)

	_, err = New(Deps{
		Store:     docs,
		Corpus:    corpus,
		Retriever: search.NewRetriever(corpus, docs, search.Config{}),
		Embedder:  embed.NewStaticEmbedder(16),
		Generator: generate.EchoGenerator{},
		Cache:     cache.NewMemoryCache[QueryResponse](1),
	}, Config{})

	assert.True(t, errors.Is(err, rerrors.ErrDimensionMismatch))
}

func TestBuildPrompt(t *testing.T) {
	docs := []search.RetrievalResult{{Text: "one"}, {Text: "two"}}

	got := BuildPrompt("why?", docs)

	assert.Equal(t, "Context: one\ntwo\n\nQuestion: why?\n\nAnswer based on the context provided:", got)
}

func TestRetrieve_SkipsGenerationAndCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{}, nil, Config{TopK: 2})
	_, err := f.orch.AddDocuments(ctx, sampleInputs)
	require.NoError(t, err)

	// When: retrieving directly
	docs, err := f.orch.Retrieve(ctx, "capital of Germany", search.Options{})

	// Then: top k documents come back and nothing else happened
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "geo/germany.txt", docs[0].Metadata.Source)
	assert.Equal(t, int32(0), f.gen.calls.Load())
	assert.Equal(t, 0, f.cache.Len(ctx))

	_, err = f.orch.Retrieve(ctx, " ", search.Options{})
	assert.ErrorIs(t, err, rerrors.ErrQueryEmpty)
}

func TestProcessQuery_RecordsTelemetry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &countingGenerator{}, nil, Config{})

	// When: a query runs against an empty corpus, another fails and the
	// first is repeated from the cache
	_, err := f.orch.ProcessQuery(ctx, "capital of Atlantis")
	require.NoError(t, err)
	f.gen.err = errors.New("boom")
	_, err = f.orch.ProcessQuery(ctx, "capital of Lemuria")
	require.Error(t, err)
	again, err := f.orch.ProcessQuery(ctx, "capital of Atlantis")
	require.NoError(t, err)
	require.True(t, again.Cached)

	// Then: every query is counted and failures are not misses
	s := f.tel.Snapshot()
	assert.Equal(t, int64(3), s.Total)
	assert.Equal(t, int64(1), s.Failed)
	assert.Equal(t, int64(2), s.ZeroResults)
	assert.Equal(t, int64(1), s.Repeats)
	assert.Equal(t, int64(1), s.CacheHits)
	assert.Equal(t, int64(3), s.Paths[string(PathRAG)])
}
