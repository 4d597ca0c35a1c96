// Package search implements hybrid retrieval: dense and lexical lookups
// run in parallel, their rankings are fused with weighted Reciprocal Rank
// Fusion, and the fused candidates are hydrated from the document store.
package search

import (
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

const (
	// DefaultTopK is the number of results returned when none is requested.
	DefaultTopK = 5

	// MaxTopK caps the number of results per query.
	MaxTopK = 100

	// DefaultRRFConstant is the RRF smoothing parameter k.
	DefaultRRFConstant = 60

	// candidateMultiplier over-fetches from each index so that dedup and
	// filtering still leave top_k results.
	candidateMultiplier = 2
)

// Weights sets the relative importance of the two rankings.
type Weights struct {
	Dense   float64 `json:"dense"`
	Lexical float64 `json:"lexical"`
}

// DefaultWeights returns equal weights.
func DefaultWeights() Weights {
	return Weights{Dense: 0.5, Lexical: 0.5}
}

// Metadata describes where a result came from.
type Metadata struct {
	Source string          `json:"source"`
	Type   store.MediaType `json:"type"`
}

// RetrievalResult is one hydrated, ranked document.
type RetrievalResult struct {
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	Metadata   Metadata `json:"metadata"`

	// Score is the fused relevance normalized to [0,1] by the best result.
	Score float64 `json:"score"`

	// DenseScore is 1/(1+distance); zero when the dense index missed it.
	DenseScore float64 `json:"dense_score"`
	// LexicalScore is the raw BM25 score; zero when the lexical index missed it.
	LexicalScore float64 `json:"lexical_score"`

	// Ranks are 1-indexed; 0 means absent from that list.
	DenseRank   int  `json:"dense_rank"`
	LexicalRank int  `json:"lexical_rank"`
	InBothLists bool `json:"in_both_lists"`
}

// Options configures one search. Zero values select the retriever's
// defaults.
type Options struct {
	TopK    int
	Weights *Weights

	// Types keeps only documents of these media types.
	Types []store.MediaType

	// SourcePrefixes keeps only documents whose source starts with any prefix.
	SourcePrefixes []string
}
