package classify

import (
	"context"
	"log/slog"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of cached classifications.
const DefaultCacheSize = 1000

// HybridClassifier tries the LLM first and falls back to patterns.
// Results are cached in an LRU keyed by the normalized query.
type HybridClassifier struct {
	llm      Classifier
	patterns *PatternClassifier
	cache    *lru.Cache[string, Classification]
	logger   *slog.Logger
}

var _ Classifier = (*HybridClassifier)(nil)

// NewHybridClassifier creates a hybrid classifier. A nil llm classifies
// by patterns only, still cached.
func NewHybridClassifier(llm Classifier, cacheSize int, logger *slog.Logger) *HybridClassifier {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, _ := lru.New[string, Classification](cacheSize)
	return &HybridClassifier{
		llm:      llm,
		patterns: NewPatternClassifier(),
		cache:    cache,
		logger:   logger,
	}
}

// Classify returns a cached label, else the LLM's, else the pattern label.
func (h *HybridClassifier) Classify(ctx context.Context, query string) (Classification, error) {
	key := normalizeQuery(query)
	if key == "" {
		return h.patterns.Classify(ctx, query)
	}
	if c, ok := h.cache.Get(key); ok {
		return c, nil
	}

	if h.llm != nil {
		c, err := h.llm.Classify(ctx, query)
		if err == nil {
			h.cache.Add(key, c)
			return c, nil
		}
		h.logger.Debug("llm classification failed, using patterns",
			slog.String("error", err.Error()))
	}

	c, err := h.patterns.Classify(ctx, query)
	if err == nil {
		h.cache.Add(key, c)
	}
	return c, err
}
