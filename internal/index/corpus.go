// Package index coordinates the dense and lexical indexes over one
// document corpus: position to document mappings, the lazy training
// buffer, snapshots, and the single-writer/multi-reader lock.
package index

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

// Config configures a Corpus.
type Config struct {
	Dimensions   int
	MinTrainSize int
	HNSWM        int
	HNSWEfSearch int
	BM25         store.BM25Config
	Logger       *slog.Logger
}

// Entry is one document to index.
type Entry struct {
	DocumentID string
	Content    string
	Vector     []float32
}

// DenseMatch is a dense hit resolved to its document.
type DenseMatch struct {
	DocumentID string
	Distance   float32
}

// LexicalMatch is a lexical hit resolved to its document.
type LexicalMatch struct {
	DocumentID string
	Score      float64
}

// Stats describes the indexed state.
type Stats struct {
	// Documents is the number of documents in the lexical index.
	Documents int
	// DenseVectors is the number of vectors in the dense graph.
	DenseVectors int
	// Pending is the number of vectors waiting for dense training.
	Pending int
	Trained bool
}

type pendingVector struct {
	id     string
	vector []float32
}

// Corpus owns the dense and lexical indexes. Writers take the write lock
// for index mutation only; readers hold the read lock across both
// lookups of a query.
type Corpus struct {
	mu sync.RWMutex

	denseCfg store.HNSWConfig
	dense    *store.HNSWIndex
	lexical  *store.LexicalIndex

	denseIDs   map[uint64]string
	lexicalIDs []string
	indexed    map[string]struct{}
	pending    []pendingVector

	logger *slog.Logger
}

// New creates an empty corpus.
func New(cfg Config) (*Corpus, error) {
	denseCfg := store.HNSWConfig{
		Dimensions:   cfg.Dimensions,
		MinTrainSize: cfg.MinTrainSize,
		M:            cfg.HNSWM,
		EfSearch:     cfg.HNSWEfSearch,
	}
	dense, err := store.NewHNSWIndex(denseCfg)
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Corpus{
		denseCfg: denseCfg,
		dense:    dense,
		lexical:  store.NewLexicalIndex(cfg.BM25),
		denseIDs: make(map[uint64]string),
		indexed:  make(map[string]struct{}),
		logger:   logger,
	}, nil
}

// Dimensions returns the dense vector length.
func (c *Corpus) Dimensions() int {
	return c.dense.Dimensions()
}

// Add indexes entries. Documents already indexed are skipped. Every vector
// is checked before anything is mutated, so a dimension mismatch leaves
// both indexes untouched. Returns how many entries were new.
func (c *Corpus) Add(entries []Entry) (int, error) {
	for _, e := range entries {
		if len(e.Vector) != c.dense.Dimensions() {
			return 0, rerrors.DimensionMismatch(c.dense.Dimensions(), len(e.Vector))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var fresh []Entry
	for _, e := range entries {
		if _, ok := c.indexed[e.DocumentID]; ok {
			continue
		}
		c.indexed[e.DocumentID] = struct{}{}
		fresh = append(fresh, e)
	}
	if len(fresh) == 0 {
		return 0, nil
	}

	for _, e := range fresh {
		c.addLexical(e.DocumentID, e.Content)
	}
	vectors := make([]pendingVector, len(fresh))
	for i, e := range fresh {
		vectors[i] = pendingVector{id: e.DocumentID, vector: e.Vector}
	}
	if err := c.addDense(vectors); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

func (c *Corpus) addLexical(id, content string) {
	pos := c.lexical.Add(store.Tokenize(content))
	if pos != len(c.lexicalIDs) {
		// Positions and ids must stay aligned; this indicates a bug.
		panic(fmt.Sprintf("lexical position %d out of step with %d ids", pos, len(c.lexicalIDs)))
	}
	c.lexicalIDs = append(c.lexicalIDs, id)
}

// addDense inserts directly once trained; before that vectors wait in the
// buffer until there are enough to train on. Caller holds the write lock.
func (c *Corpus) addDense(vectors []pendingVector) error {
	if !c.dense.IsTrained() {
		c.pending = append(c.pending, vectors...)
		if len(c.pending) < c.dense.MinTrainSize() {
			c.logger.Debug("dense vectors buffered",
				slog.Int("pending", len(c.pending)),
				slog.Int("min_train_size", c.dense.MinTrainSize()))
			return nil
		}

		sample := make([][]float32, len(c.pending))
		for i, p := range c.pending {
			sample[i] = p.vector
		}
		if err := c.dense.Train(sample); err != nil {
			return err
		}
		c.logger.Info("dense index trained", slog.Int("vectors", len(sample)))
		vectors, c.pending = c.pending, nil
	}

	raw := make([][]float32, len(vectors))
	for i, v := range vectors {
		raw[i] = v.vector
	}
	positions, err := c.dense.Add(raw)
	if err != nil {
		return err
	}
	for i, pos := range positions {
		c.denseIDs[pos] = vectors[i].id
	}
	return nil
}

// Reader performs lookups while a Corpus read lock is held.
type Reader struct {
	c *Corpus
}

// View runs fn with the read lock held across all its lookups.
func (c *Corpus) View(fn func(r Reader) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fn(Reader{c: c})
}

// SearchDense returns up to k dense matches. Buffered vectors are not
// searchable until training; an untrained index yields no matches.
func (r Reader) SearchDense(query []float32, k int) ([]DenseMatch, error) {
	hits, err := r.c.dense.Search(query, k)
	if err != nil {
		return nil, err
	}
	out := make([]DenseMatch, 0, len(hits))
	for _, h := range hits {
		id, ok := r.c.denseIDs[h.Position]
		if !ok {
			continue
		}
		out = append(out, DenseMatch{DocumentID: id, Distance: h.Distance})
	}
	return out, nil
}

// SearchLexical returns up to k BM25 matches for the query terms.
func (r Reader) SearchLexical(tokens []string, k int) []LexicalMatch {
	hits := r.c.lexical.Search(tokens, k)
	out := make([]LexicalMatch, 0, len(hits))
	for _, h := range hits {
		out = append(out, LexicalMatch{DocumentID: r.c.lexicalIDs[h.Position], Score: h.Score})
	}
	return out
}

// Stats returns counts for the indexed state.
func (c *Corpus) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Documents:    len(c.lexicalIDs),
		DenseVectors: len(c.denseIDs),
		Pending:      len(c.pending),
		Trained:      c.dense.IsTrained(),
	}
}

// Load rebuilds the corpus from docs. The lexical index is always rebuilt;
// the dense graph is restored from the snapshot at snapshotPath when one
// is readable and otherwise rebuilt from stored embeddings.
func (c *Corpus) Load(ctx context.Context, docs store.DocumentStore, snapshotPath string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if snapshotPath != "" {
		if err := c.loadSnapshot(snapshotPath); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				c.logger.Warn("dense snapshot unusable, rebuilding from store",
					slog.String("path", snapshotPath),
					slog.String("error", err.Error()))
			}
			c.resetDense()
		}
	}

	inDense := make(map[string]struct{}, len(c.denseIDs))
	for _, id := range c.denseIDs {
		inDense[id] = struct{}{}
	}

	var skipped int
	err := docs.All(ctx, func(d *store.Document) error {
		if _, ok := c.indexed[d.ID]; ok {
			return nil
		}
		c.indexed[d.ID] = struct{}{}
		c.addLexical(d.ID, d.Content)

		if _, ok := inDense[d.ID]; ok {
			return nil
		}
		if len(d.Embedding) != c.dense.Dimensions() {
			skipped++
			return nil
		}
		return c.addDense([]pendingVector{{id: d.ID, vector: d.Embedding}})
	})
	if err != nil {
		return fmt.Errorf("rebuild corpus: %w", err)
	}

	if skipped > 0 {
		c.logger.Warn("documents without usable embeddings left out of dense index",
			slog.Int("count", skipped),
			slog.Int("dimensions", c.dense.Dimensions()))
	}
	c.logger.Info("corpus loaded",
		slog.Int("documents", len(c.lexicalIDs)),
		slog.Int("dense_vectors", len(c.denseIDs)),
		slog.Int("pending", len(c.pending)))
	return nil
}

func (c *Corpus) resetDense() {
	fresh, err := store.NewHNSWIndex(c.denseCfg)
	if err == nil {
		c.dense = fresh
	}
	c.denseIDs = make(map[uint64]string)
}

func (c *Corpus) loadSnapshot(path string) error {
	f, err := os.Open(path + ".ids")
	if err != nil {
		return err
	}
	defer f.Close()

	var ids map[uint64]string
	if err := gob.NewDecoder(f).Decode(&ids); err != nil {
		return rerrors.New(rerrors.ErrCodeCorruptIndex, "failed to decode dense id map", err)
	}
	if err := c.dense.Load(path); err != nil {
		return err
	}
	if len(ids) != c.dense.Len() {
		return rerrors.New(rerrors.ErrCodeCorruptIndex,
			fmt.Sprintf("dense snapshot has %d vectors but %d ids", c.dense.Len(), len(ids)), nil)
	}
	c.denseIDs = ids
	return nil
}

// Save snapshots the dense index to path, path.meta and path.ids. Pending
// vectors are not snapshotted; they are rebuilt from the store on Load.
func (c *Corpus) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.dense.Save(path); err != nil {
		return err
	}

	tmp := path + ".ids.tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create id map: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(c.denseIDs); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to encode id map: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to close id map: %w", err)
	}
	return os.Rename(tmp, path+".ids")
}
