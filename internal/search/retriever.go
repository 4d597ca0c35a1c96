package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/index"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

// Config configures a Retriever.
type Config struct {
	TopK        int
	Weights     Weights
	RRFConstant int

	// Retry governs the search-and-hydrate step (default: one retry on
	// retryable errors).
	Retry *rerrors.RetryConfig

	Logger *slog.Logger
}

// Retriever runs hybrid searches over a corpus and hydrates results from
// the document store.
type Retriever struct {
	corpus *index.Corpus
	docs   store.DocumentStore
	fusion *RRFFusion
	cfg    Config
	retry  rerrors.RetryConfig
	logger *slog.Logger
}

// NewRetriever creates a retriever.
func NewRetriever(corpus *index.Corpus, docs store.DocumentStore, cfg Config) *Retriever {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.Weights == (Weights{}) {
		cfg.Weights = DefaultWeights()
	}
	retry := rerrors.RetryOnceConfig()
	if cfg.Retry != nil {
		retry = *cfg.Retry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		corpus: corpus,
		docs:   docs,
		fusion: NewRRFFusion(cfg.RRFConstant),
		cfg:    cfg,
		retry:  retry,
		logger: logger,
	}
}

// Search returns up to top_k results for query. embedding may be nil, in
// which case only the lexical index is consulted. An empty corpus yields
// an empty slice and no error.
func (r *Retriever) Search(ctx context.Context, query string, embedding []float32, opts Options) ([]RetrievalResult, error) {
	topK := opts.TopK
	if topK <= 0 {
		topK = r.cfg.TopK
	}
	topK = min(topK, MaxTopK)
	weights := r.cfg.Weights
	if opts.Weights != nil {
		weights = *opts.Weights
	}

	return rerrors.RetryWithResult(ctx, r.retry, func() ([]RetrievalResult, error) {
		return r.search(ctx, query, embedding, topK, weights, opts)
	})
}

func (r *Retriever) search(ctx context.Context, query string, embedding []float32, topK int, w Weights, opts Options) ([]RetrievalResult, error) {
	start := time.Now()
	limit := topK * candidateMultiplier
	tokens := store.Tokenize(query)

	var (
		dense    []index.DenseMatch
		lexical  []index.LexicalMatch
		denseErr error
	)
	err := r.corpus.View(func(rd index.Reader) error {
		g, gctx := errgroup.WithContext(ctx)

		// The dense side records its error so lexical can still answer.
		g.Go(func() error {
			if embedding == nil {
				return nil
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			dense, denseErr = rd.SearchDense(embedding, limit)
			return nil
		})
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			lexical = rd.SearchLexical(tokens, limit)
			return nil
		})
		return g.Wait()
	})
	if err != nil {
		return nil, err
	}

	if errors.Is(denseErr, rerrors.ErrDimensionMismatch) {
		return nil, denseErr
	}
	if denseErr != nil {
		// Lexical lookups cannot fail, but a query with no usable terms
		// leaves nothing to fall back on.
		if len(tokens) == 0 {
			return nil, rerrors.New(rerrors.ErrCodeSearchFailed, "dense search failed and query has no lexical terms", denseErr)
		}
		r.logger.Warn("dense search failed, using lexical results only",
			slog.String("error", denseErr.Error()))
	}

	candidates := r.fusion.Fuse(dense, lexical, w)

	// Truncate after hydration and filtering so candidates missing from
	// the store do not shrink the result below top_k.
	results, err := r.hydrate(ctx, candidates)
	if err != nil {
		return nil, err
	}
	if len(opts.Types) > 0 || len(opts.SourcePrefixes) > 0 {
		results = applyFilters(results, opts)
	}
	if len(results) > topK {
		results = results[:topK]
	}

	r.logger.Debug("hybrid search",
		slog.Int("dense_hits", len(dense)),
		slog.Int("lexical_hits", len(lexical)),
		slog.Int("results", len(results)),
		slog.Duration("elapsed", time.Since(start)))
	return results, nil
}

// hydrate fetches candidates in one batch, keeping fused order. IDs the
// store no longer has are skipped.
func (r *Retriever) hydrate(ctx context.Context, candidates []*fused) ([]RetrievalResult, error) {
	if len(candidates) == 0 {
		return []RetrievalResult{}, nil
	}

	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.id
	}
	docs, err := r.docs.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("hydrate results: %w", err)
	}
	byID := make(map[string]*store.Document, len(docs))
	for _, d := range docs {
		byID[d.ID] = d
	}

	results := make([]RetrievalResult, 0, len(candidates))
	for _, c := range candidates {
		d, ok := byID[c.id]
		if !ok {
			r.logger.Warn("indexed document missing from store", slog.String("id", c.id))
			continue
		}
		results = append(results, RetrievalResult{
			DocumentID:   c.id,
			Text:         d.Content,
			Metadata:     Metadata{Source: d.Source, Type: d.Type},
			Score:        c.score,
			DenseScore:   c.denseScore,
			LexicalScore: c.lexicalScore,
			DenseRank:    c.denseRank,
			LexicalRank:  c.lexicalRank,
			InBothLists:  c.inBoth(),
		})
	}
	return results, nil
}

func applyFilters(results []RetrievalResult, opts Options) []RetrievalResult {
	out := results[:0]
	for _, res := range results {
		if len(opts.Types) > 0 && !hasType(opts.Types, res.Metadata.Type) {
			continue
		}
		if len(opts.SourcePrefixes) > 0 && !hasPrefix(opts.SourcePrefixes, res.Metadata.Source) {
			continue
		}
		out = append(out, res)
	}
	return out
}

func hasType(types []store.MediaType, t store.MediaType) bool {
	for _, want := range types {
		if want == t {
			return true
		}
	}
	return false
}

func hasPrefix(prefixes []string, source string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(source, p) {
			return true
		}
	}
	return false
}
