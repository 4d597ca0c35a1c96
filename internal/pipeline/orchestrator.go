package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tije-csv/RAG-2.2/internal/cache"
	"github.com/Tije-csv/RAG-2.2/internal/classify"
	"github.com/Tije-csv/RAG-2.2/internal/embed"
	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/generate"
	"github.com/Tije-csv/RAG-2.2/internal/index"
	"github.com/Tije-csv/RAG-2.2/internal/metrics"
	"github.com/Tije-csv/RAG-2.2/internal/search"
	"github.com/Tije-csv/RAG-2.2/internal/store"
	"github.com/Tije-csv/RAG-2.2/internal/telemetry"
)

// DefaultGenerationTimeout bounds a single generator call.
const DefaultGenerationTimeout = 30 * time.Second

// DefaultSource labels inline documents submitted without one.
const DefaultSource = "inline"

// Deps are the collaborators an Orchestrator drives. Classifier, Metrics
// and Telemetry are optional.
type Deps struct {
	Store      store.DocumentStore
	Corpus     *index.Corpus
	Retriever  *search.Retriever
	Embedder   embed.Embedder
	Generator  generate.Generator
	Classifier classify.Classifier
	Cache      cache.Cache[QueryResponse]
	Metrics    *metrics.Metrics
	Telemetry  *telemetry.Collector
	Logger     *slog.Logger
}

// Config tunes query handling.
type Config struct {
	TopK              int
	CacheTTL          time.Duration
	GenerationTimeout time.Duration
	Generate          generate.GenerateOptions
}

// Orchestrator runs queries and ingestion against one corpus.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	// ingestMu serializes AddDocuments.
	ingestMu sync.Mutex
	// epoch counts ingests that added documents. Answers computed across
	// an epoch change are not cached.
	epoch atomic.Uint64

	queries   atomic.Int64
	cacheHits atomic.Int64
}

// New validates deps and creates an Orchestrator.
func New(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Store == nil:
		return nil, rerrors.InternalError("pipeline needs a document store", nil)
	case deps.Corpus == nil:
		return nil, rerrors.InternalError("pipeline needs a corpus", nil)
	case deps.Retriever == nil:
		return nil, rerrors.InternalError("pipeline needs a retriever", nil)
	case deps.Embedder == nil:
		return nil, rerrors.InternalError("pipeline needs an embedder", nil)
	case deps.Generator == nil:
		return nil, rerrors.InternalError("pipeline needs a generator", nil)
	case deps.Cache == nil:
		return nil, rerrors.InternalError("pipeline needs a query cache", nil)
	}
	if deps.Embedder.Dimensions() != deps.Corpus.Dimensions() {
		return nil, rerrors.DimensionMismatch(deps.Corpus.Dimensions(), deps.Embedder.Dimensions()).
			WithSuggestion("Set embeddings.dimensions to match the embedding model")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: deps.Logger}, nil
}

// ProcessQuery answers text. Generative queries skip retrieval and the
// cache; everything else is answered from retrieved context and cached
// after a successful generation.
func (o *Orchestrator) ProcessQuery(ctx context.Context, text string) (*QueryResponse, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return nil, rerrors.New(rerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	o.queries.Add(1)
	start := time.Now()

	path := o.route(ctx, query)
	var (
		resp *QueryResponse
		err  error
	)
	if path == PathDirect {
		resp, err = o.direct(ctx, query)
	} else {
		resp, err = o.rag(ctx, query)
	}

	status := metrics.StatusOK
	if err != nil {
		status = metrics.StatusError
	}
	o.deps.Metrics.RecordQuery(string(path), status)

	event := telemetry.Event{Query: query, Path: string(path), Latency: time.Since(start), Failed: err != nil}
	if resp != nil {
		event.Results = len(resp.RetrievedDocs)
		event.Cached = resp.Cached
	}
	o.deps.Telemetry.Record(event)
	return resp, err
}

// route picks the answer path. Classifier failures fall back to retrieval.
func (o *Orchestrator) route(ctx context.Context, query string) Path {
	if o.deps.Classifier == nil {
		return PathRAG
	}
	c, err := o.deps.Classifier.Classify(ctx, query)
	if err != nil {
		o.logger.Warn("classification failed, using retrieval",
			slog.String("error", err.Error()))
		return PathRAG
	}
	o.logger.Debug("query classified",
		slog.String("label", string(c.Label)),
		slog.Float64("confidence", c.Confidence))
	if c.Label == classify.LabelGenerative {
		return PathDirect
	}
	return PathRAG
}

func (o *Orchestrator) direct(ctx context.Context, query string) (*QueryResponse, error) {
	answer, err := o.generate(ctx, query)
	if err != nil {
		return nil, err
	}
	return &QueryResponse{Answer: answer, RetrievedDocs: []search.RetrievalResult{}, Path: PathDirect}, nil
}

func (o *Orchestrator) rag(ctx context.Context, query string) (*QueryResponse, error) {
	if cached, ok := o.deps.Cache.Get(ctx, query); ok {
		o.deps.Metrics.RecordCache(true)
		o.cacheHits.Add(1)
		cached.Cached = true
		return cached, nil
	}
	o.deps.Metrics.RecordCache(false)

	epoch := o.epoch.Load()
	docs, err := o.retrieve(ctx, query, search.Options{TopK: o.cfg.TopK})
	if err != nil {
		return nil, err
	}

	answer, err := o.generate(ctx, BuildPrompt(query, docs))
	if err != nil {
		return nil, err
	}

	resp := &QueryResponse{Answer: answer, RetrievedDocs: docs, Path: PathRAG}
	if o.epoch.Load() != epoch {
		o.logger.Debug("corpus changed during query, not caching")
		return resp, nil
	}
	o.deps.Cache.Put(ctx, query, resp, o.cfg.CacheTTL)
	// An ingest that landed between the check and Put may have
	// invalidated before the write.
	if o.epoch.Load() != epoch {
		o.deps.Cache.Invalidate(ctx)
	}
	return resp, nil
}

// Retrieve runs hybrid retrieval for text without generating an answer
// or touching the query cache. opts.TopK defaults to the configured top k.
func (o *Orchestrator) Retrieve(ctx context.Context, text string, opts search.Options) ([]search.RetrievalResult, error) {
	query := strings.TrimSpace(text)
	if query == "" {
		return nil, rerrors.New(rerrors.ErrCodeQueryEmpty, "query is empty", nil)
	}
	if opts.TopK <= 0 {
		opts.TopK = o.cfg.TopK
	}
	return o.retrieve(ctx, query, opts)
}

// retrieve embeds query and searches. A failed embedding degrades to
// lexical-only search unless ctx is done.
func (o *Orchestrator) retrieve(ctx context.Context, query string, opts search.Options) ([]search.RetrievalResult, error) {
	embedding, err := o.deps.Embedder.Embed(ctx, query)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.logger.Warn("query embedding failed, searching lexically",
			slog.String("error", err.Error()))
		embedding = nil
	}

	start := time.Now()
	docs, err := o.deps.Retriever.Search(ctx, query, embedding, opts)
	o.deps.Metrics.ObserveRetrieval(time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	return docs, nil
}

// generate calls the generator under the generation deadline. A deadline
// hit becomes GenerationTimeout; provider errors pass through typed.
func (o *Orchestrator) generate(ctx context.Context, prompt string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerationTimeout)
	defer cancel()

	opts := o.cfg.Generate
	start := time.Now()
	answer, err := o.deps.Generator.Generate(genCtx, prompt, &opts)
	o.deps.Metrics.ObserveGeneration(time.Since(start))
	if err == nil {
		return answer, nil
	}

	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if errors.Is(genCtx.Err(), context.DeadlineExceeded) {
		return "", rerrors.New(rerrors.ErrCodeGenerationTimeout,
			fmt.Sprintf("generation exceeded %s", o.cfg.GenerationTimeout), err).
			WithDetail("generator", o.deps.Generator.Name()).
			WithSuggestion("Raise generation.timeout or use a faster model")
	}
	return "", fmt.Errorf("generate: %w", err)
}

// AddDocuments stores and indexes inputs, returning how many were new.
// Blank inputs are ignored and duplicate content is stored once. Embedding
// and storage happen outside the corpus lock; only index mutation holds it.
// Any new document invalidates the query cache.
func (o *Orchestrator) AddDocuments(ctx context.Context, inputs []store.Input) (int, error) {
	o.ingestMu.Lock()
	defer o.ingestMu.Unlock()

	docs := make([]*store.Document, 0, len(inputs))
	seen := make(map[string]struct{}, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.Content) == "" {
			continue
		}
		id := store.ContentHash(in.Content)
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		doc := &store.Document{ID: id, Content: in.Content, Source: in.Source, Type: in.Type}
		if doc.Source == "" {
			doc.Source = DefaultSource
		}
		if doc.Type == "" {
			doc.Type = store.MediaText
		}
		docs = append(docs, doc)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vectors, err := o.deps.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		if rerrors.GetCode(err) != "" {
			return 0, fmt.Errorf("embed documents: %w", err)
		}
		return 0, rerrors.New(rerrors.ErrCodeEmbeddingFailed, "failed to embed documents", err)
	}
	for i, v := range vectors {
		if len(v) != o.deps.Corpus.Dimensions() {
			return 0, rerrors.DimensionMismatch(o.deps.Corpus.Dimensions(), len(v))
		}
		docs[i].Embedding = v
	}

	added := 0
	entries := make([]index.Entry, 0, len(docs))
	var upsertErr error
	for _, d := range docs {
		id, created, err := o.deps.Store.Upsert(ctx, d)
		if err != nil {
			upsertErr = fmt.Errorf("store %s: %w", d.Source, err)
			break
		}
		if created {
			added++
		}
		entries = append(entries, index.Entry{DocumentID: id, Content: d.Content, Vector: d.Embedding})
	}

	if _, err := o.deps.Corpus.Add(entries); err != nil {
		return added, fmt.Errorf("index documents: %w", err)
	}
	if added > 0 {
		o.epoch.Add(1)
		o.deps.Cache.Invalidate(ctx)
		o.deps.Metrics.AddDocuments(added)
	}
	o.logger.Info("documents ingested",
		slog.Int("submitted", len(inputs)),
		slog.Int("added", added))
	return added, upsertErr
}

// Stats reports corpus and traffic counters.
func (o *Orchestrator) Stats(ctx context.Context) (Stats, error) {
	count, err := o.deps.Store.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}
	cs := o.deps.Corpus.Stats()
	return Stats{
		DocumentCount:    count,
		CachedQueryCount: o.deps.Cache.Len(ctx),
		IndexedDocuments: cs.Documents,
		DenseVectors:     cs.DenseVectors,
		PendingVectors:   cs.Pending,
		DenseTrained:     cs.Trained,
		TotalQueries:     o.queries.Load(),
		CacheHits:        o.cacheHits.Load(),
		Embedder:         o.deps.Embedder.ModelName(),
		Generator:        o.deps.Generator.Name(),
	}, nil
}
