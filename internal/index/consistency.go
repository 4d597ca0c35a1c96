package index

import (
	"context"
	"log/slog"
	"time"

	"github.com/Tije-csv/RAG-2.2/internal/store"
)

// InconsistencyType categorizes detected issues.
type InconsistencyType int

const (
	// InconsistencyOrphanLexical indicates a lexical entry with no stored document.
	InconsistencyOrphanLexical InconsistencyType = iota
	// InconsistencyOrphanDense indicates a dense entry with no stored document.
	InconsistencyOrphanDense
	// InconsistencyMissingLexical indicates a stored document absent from the lexical index.
	InconsistencyMissingLexical
	// InconsistencyMissingDense indicates a stored embedding neither in the
	// dense graph nor waiting for training.
	InconsistencyMissingDense
)

// String returns a short name for the inconsistency type.
func (t InconsistencyType) String() string {
	switch t {
	case InconsistencyOrphanLexical:
		return "orphan_lexical"
	case InconsistencyOrphanDense:
		return "orphan_dense"
	case InconsistencyMissingLexical:
		return "missing_lexical"
	case InconsistencyMissingDense:
		return "missing_dense"
	default:
		return "unknown"
	}
}

// Inconsistency is one detected mismatch between the store and an index.
type Inconsistency struct {
	Type       InconsistencyType
	DocumentID string
}

// CheckResult contains the outcome of a consistency check.
type CheckResult struct {
	// Checked is the number of stored documents verified.
	Checked         int
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Consistent reports whether no issues were found.
func (r *CheckResult) Consistent() bool {
	return len(r.Inconsistencies) == 0
}

// Count returns how many issues of type t were found.
func (r *CheckResult) Count(t InconsistencyType) int {
	n := 0
	for _, i := range r.Inconsistencies {
		if i.Type == t {
			n++
		}
	}
	return n
}

// Check compares the document store, which is the source of truth, with
// both indexes. Documents whose embedding length differs from the corpus
// dimensionality are not expected in the dense index.
func (c *Corpus) Check(ctx context.Context, docs store.DocumentStore) (*CheckResult, error) {
	start := time.Now()

	stored := make(map[string]bool)
	embedded := make(map[string]bool)
	err := docs.All(ctx, func(d *store.Document) error {
		stored[d.ID] = true
		if len(d.Embedding) == c.Dimensions() {
			embedded[d.ID] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	lexical := make(map[string]bool, len(c.lexicalIDs))
	for _, id := range c.lexicalIDs {
		lexical[id] = true
	}
	dense := make(map[string]bool, len(c.denseIDs)+len(c.pending))
	for _, id := range c.denseIDs {
		dense[id] = true
	}
	for _, p := range c.pending {
		dense[p.id] = true
	}
	c.mu.RUnlock()

	var issues []Inconsistency
	for id := range lexical {
		if !stored[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanLexical, DocumentID: id})
		}
	}
	for id := range dense {
		if !stored[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyOrphanDense, DocumentID: id})
		}
	}
	for id := range stored {
		if !lexical[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingLexical, DocumentID: id})
		}
		if embedded[id] && !dense[id] {
			issues = append(issues, Inconsistency{Type: InconsistencyMissingDense, DocumentID: id})
		}
	}

	if len(issues) > 0 {
		c.logger.Warn("corpus inconsistent with document store",
			slog.Int("stored", len(stored)),
			slog.Int("lexical", len(lexical)),
			slog.Int("dense", len(dense)),
			slog.Int("issues", len(issues)))
	}

	return &CheckResult{
		Checked:         len(stored),
		Inconsistencies: issues,
		Duration:        time.Since(start),
	}, nil
}

// QuickCheck compares counts only. Returns true when the store and the
// lexical index hold the same number of documents.
func (c *Corpus) QuickCheck(ctx context.Context, docs store.DocumentStore) (bool, error) {
	n, err := docs.Count(ctx)
	if err != nil {
		return false, err
	}
	stats := c.Stats()
	consistent := n == stats.Documents
	if !consistent {
		c.logger.Debug("corpus counts mismatch",
			slog.Int("store", n),
			slog.Int("lexical", stats.Documents),
			slog.Int("dense", stats.DenseVectors),
			slog.Int("pending", stats.Pending))
	}
	return consistent, nil
}
