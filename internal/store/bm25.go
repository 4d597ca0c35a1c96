package store

import (
	"math"
	"sort"
	"sync"
)

// BM25Config configures lexical scoring.
type BM25Config struct {
	// K1 is the term frequency saturation parameter.
	K1 float64
	// B is the length normalization parameter.
	B float64
}

// DefaultBM25Config returns K1=1.5, B=0.75.
func DefaultBM25Config() BM25Config {
	return BM25Config{K1: 1.5, B: 0.75}
}

// LexicalIndex is an append-only BM25 index over pre-tokenized documents.
// Positions are assigned in insertion order starting at zero. Corpus
// statistics are updated on every Add, so scores always reflect the
// current corpus.
type LexicalIndex struct {
	mu  sync.RWMutex
	cfg BM25Config

	termFreqs []map[string]int
	lengths   []int
	totalLen  int

	// postings lists the positions containing each term, ascending.
	postings map[string][]int
}

// NewLexicalIndex creates an empty index.
func NewLexicalIndex(cfg BM25Config) *LexicalIndex {
	if cfg.K1 <= 0 {
		cfg.K1 = DefaultBM25Config().K1
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = DefaultBM25Config().B
	}
	return &LexicalIndex{
		cfg:      cfg,
		postings: make(map[string][]int),
	}
}

// Add appends a document and returns its position.
func (x *LexicalIndex) Add(tokens []string) int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	pos := len(x.termFreqs)
	x.termFreqs = append(x.termFreqs, tf)
	x.lengths = append(x.lengths, len(tokens))
	x.totalLen += len(tokens)
	for term := range tf {
		x.postings[term] = append(x.postings[term], pos)
	}
	return pos
}

// Len returns the number of indexed documents.
func (x *LexicalIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.termFreqs)
}

// Search scores every document containing at least one query term and
// returns the best k, highest score first, ties by lower position.
// Repeated query terms contribute once per occurrence.
func (x *LexicalIndex) Search(queryTokens []string, k int) []LexicalHit {
	if k <= 0 || len(queryTokens) == 0 {
		return []LexicalHit{}
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	n := len(x.termFreqs)
	if n == 0 {
		return []LexicalHit{}
	}
	avgLen := float64(x.totalLen) / float64(n)

	scores := make(map[int]float64)
	for _, term := range queryTokens {
		positions := x.postings[term]
		if len(positions) == 0 {
			continue
		}
		idf := x.idf(len(positions), n)
		for _, pos := range positions {
			scores[pos] += idf * x.termWeight(x.termFreqs[pos][term], x.lengths[pos], avgLen)
		}
	}

	hits := make([]LexicalHit, 0, len(scores))
	for pos, score := range scores {
		hits = append(hits, LexicalHit{Position: pos, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Position < hits[j].Position
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// idf is the Okapi form ln(1 + (N - df + 0.5)/(df + 0.5)), which stays
// positive even for terms present in every document.
func (x *LexicalIndex) idf(df, n int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

func (x *LexicalIndex) termWeight(tf, docLen int, avgLen float64) float64 {
	norm := 1.0
	if avgLen > 0 {
		norm = 1 - x.cfg.B + x.cfg.B*float64(docLen)/avgLen
	}
	f := float64(tf)
	return f * (x.cfg.K1 + 1) / (f + x.cfg.K1*norm)
}
