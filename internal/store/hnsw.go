package store

import (
	"bufio"
	"encoding/gob"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// HNSWConfig configures the dense index.
type HNSWConfig struct {
	// Dimensions is fixed for the lifetime of the index.
	Dimensions int
	// MinTrainSize is the smallest batch Train accepts (default: 4).
	MinTrainSize int
	// M is the maximum number of neighbors per node (default: 16).
	M int
	// EfSearch is the search candidate list size (default: 20).
	EfSearch int
}

// HNSWIndex is an approximate nearest-neighbor index over L2 distance,
// backed by coder/hnsw. It follows a train-then-add lifecycle: Add and
// Search only operate once Train has accepted a large enough sample.
type HNSWIndex struct {
	mu      sync.RWMutex
	graph   *hnsw.Graph[uint64]
	cfg     HNSWConfig
	trained bool
	next    uint64
}

// hnswMeta is persisted next to the exported graph.
type hnswMeta struct {
	Config  HNSWConfig
	Trained bool
	Next    uint64
	Nodes   int
}

// NewHNSWIndex creates an empty, untrained index.
func NewHNSWIndex(cfg HNSWConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, rerrors.ValidationError(fmt.Sprintf("dimensions must be positive, got %d", cfg.Dimensions), nil)
	}
	if cfg.MinTrainSize <= 0 {
		cfg.MinTrainSize = 4
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	return &HNSWIndex{
		graph: newGraph(cfg),
		cfg:   cfg,
	}, nil
}

func newGraph(cfg HNSWConfig) *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.EuclideanDistance
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	g.Ml = 0.25
	return g
}

// Dimensions returns the fixed vector length.
func (x *HNSWIndex) Dimensions() int {
	return x.cfg.Dimensions
}

// MinTrainSize returns the smallest accepted training batch.
func (x *HNSWIndex) MinTrainSize() int {
	return x.cfg.MinTrainSize
}

// IsTrained reports whether Add and Search are enabled.
func (x *HNSWIndex) IsTrained() bool {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.trained
}

// Len returns the number of vectors in the graph.
func (x *HNSWIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.graph.Len()
}

// Train validates a representative sample and enables Add. The sample is
// not inserted; callers add it afterwards. Training an already trained
// index is a no-op.
func (x *HNSWIndex) Train(vectors [][]float32) error {
	if err := x.checkDims(vectors); err != nil {
		return err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if x.trained {
		return nil
	}
	if len(vectors) < x.cfg.MinTrainSize {
		return rerrors.New(rerrors.ErrCodeInsufficientTraining,
			fmt.Sprintf("need at least %d vectors to train, got %d", x.cfg.MinTrainSize, len(vectors)), nil)
	}
	x.trained = true
	return nil
}

// Add inserts vectors and returns their positions. The whole batch is
// validated before any vector is inserted.
func (x *HNSWIndex) Add(vectors [][]float32) ([]uint64, error) {
	if err := x.checkDims(vectors); err != nil {
		return nil, err
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if !x.trained {
		return nil, rerrors.New(rerrors.ErrCodeIndexNotTrained, "dense index is not trained", nil)
	}

	positions := make([]uint64, len(vectors))
	nodes := make([]hnsw.Node[uint64], len(vectors))
	for i, v := range vectors {
		vec := make([]float32, len(v))
		copy(vec, v)
		positions[i] = x.next
		nodes[i] = hnsw.MakeNode(x.next, vec)
		x.next++
	}
	x.graph.Add(nodes...)
	return positions, nil
}

// Search returns up to k hits ordered by ascending distance, ties by
// position. An untrained or empty index yields no hits.
func (x *HNSWIndex) Search(query []float32, k int) ([]DenseHit, error) {
	if len(query) != x.cfg.Dimensions {
		return nil, rerrors.DimensionMismatch(x.cfg.Dimensions, len(query))
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	if !x.trained || k <= 0 || x.graph.Len() == 0 {
		return []DenseHit{}, nil
	}

	nodes := x.graph.Search(query, k)
	hits := make([]DenseHit, 0, len(nodes))
	for _, n := range nodes {
		hits = append(hits, DenseHit{
			Position: n.Key,
			Distance: x.graph.Distance(query, n.Value),
		})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Position < hits[j].Position
	})
	return hits, nil
}

func (x *HNSWIndex) checkDims(vectors [][]float32) error {
	for _, v := range vectors {
		if len(v) != x.cfg.Dimensions {
			return rerrors.DimensionMismatch(x.cfg.Dimensions, len(v))
		}
	}
	return nil
}

// Save writes the graph to path and its metadata to path.meta, each via
// a temp file and rename.
func (x *HNSWIndex) Save(path string) error {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	nodes := x.graph.Len()
	if nodes > 0 {
		err := writeAtomic(path, func(f *os.File) error {
			return x.graph.Export(f)
		})
		if err != nil {
			return fmt.Errorf("failed to export graph: %w", err)
		}
	}

	meta := hnswMeta{Config: x.cfg, Trained: x.trained, Next: x.next, Nodes: nodes}
	err := writeAtomic(path+".meta", func(f *os.File) error {
		return gob.NewEncoder(f).Encode(meta)
	})
	if err != nil {
		return fmt.Errorf("failed to save metadata: %w", err)
	}
	return nil
}

// Load replaces the index contents with a snapshot written by Save. The
// snapshot must have the same dimensionality.
func (x *HNSWIndex) Load(path string) error {
	meta, err := readHNSWMeta(path + ".meta")
	if err != nil {
		return err
	}
	if meta.Config.Dimensions != x.cfg.Dimensions {
		return rerrors.DimensionMismatch(x.cfg.Dimensions, meta.Config.Dimensions).
			WithSuggestion("Delete the dense snapshot to rebuild it with the current embedder")
	}

	graph := newGraph(meta.Config)
	if meta.Nodes > 0 {
		f, err := os.Open(path)
		if err != nil {
			return rerrors.New(rerrors.ErrCodeCorruptIndex, "dense snapshot is missing its graph", err)
		}
		defer f.Close()

		if err := graph.Import(bufio.NewReader(f)); err != nil {
			return rerrors.New(rerrors.ErrCodeCorruptIndex, "failed to import dense graph", err)
		}
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	x.graph = graph
	x.cfg = meta.Config
	x.trained = meta.Trained
	x.next = meta.Next
	return nil
}

func readHNSWMeta(path string) (hnswMeta, error) {
	var meta hnswMeta
	f, err := os.Open(path)
	if err != nil {
		return meta, fmt.Errorf("open dense metadata: %w", err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close dense metadata", slog.String("error", err.Error()))
		}
	}()

	if err := gob.NewDecoder(f).Decode(&meta); err != nil {
		return meta, rerrors.New(rerrors.ErrCodeCorruptIndex, "failed to decode dense metadata", err)
	}
	return meta, nil
}

// writeAtomic writes through fn into path.tmp and renames it over path.
func writeAtomic(path string, fn func(*os.File) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
