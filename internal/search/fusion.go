package search

import (
	"sort"

	"github.com/Tije-csv/RAG-2.2/internal/index"
)

// fused is the per-document state while combining rankings.
type fused struct {
	id           string
	score        float64
	denseScore   float64
	lexicalScore float64
	denseRank    int
	lexicalRank  int
}

func (f *fused) inBoth() bool {
	return f.denseRank > 0 && f.lexicalRank > 0
}

// RRFFusion combines dense and lexical rankings:
//
//	score(d) = Σ weight_i / (k + rank_i)
//
// A document missing from a list takes no contribution from it.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion with constant k. Non-positive k selects
// DefaultRRFConstant.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges both lists into unique documents sorted by fused score,
// then higher lexical score, then lower document ID. The best-ranked
// occurrence of a document in each list wins. Scores are normalized so
// the first result has 1.
func (f *RRFFusion) Fuse(dense []index.DenseMatch, lexical []index.LexicalMatch, w Weights) []*fused {
	byID := make(map[string]*fused, len(dense)+len(lexical))
	get := func(id string) *fused {
		r, ok := byID[id]
		if !ok {
			r = &fused{id: id}
			byID[id] = r
		}
		return r
	}

	for i, m := range dense {
		r := get(m.DocumentID)
		if r.denseRank > 0 {
			continue
		}
		r.denseRank = i + 1
		r.denseScore = 1 / (1 + float64(m.Distance))
		r.score += w.Dense / float64(f.K+i+1)
	}
	for i, m := range lexical {
		r := get(m.DocumentID)
		if r.lexicalRank > 0 {
			continue
		}
		r.lexicalRank = i + 1
		r.lexicalScore = m.Score
		r.score += w.Lexical / float64(f.K+i+1)
	}

	results := make([]*fused, 0, len(byID))
	for _, r := range byID {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		return less(results[i], results[j])
	})

	if len(results) > 0 && results[0].score > 0 {
		top := results[0].score
		for _, r := range results {
			r.score /= top
		}
	}
	return results
}

// less orders a before b. IDs are fixed-width lowercase hex, so string
// order equals numeric order of the hash.
func less(a, b *fused) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if a.lexicalScore != b.lexicalScore {
		return a.lexicalScore > b.lexicalScore
	}
	return a.id < b.id
}
