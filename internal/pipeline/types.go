// Package pipeline answers queries end to end. A query is classified; a
// generative one goes straight to the generator, and a factual one goes
// through the query cache, hybrid retrieval, prompt assembly and
// generation. Ingestion is serialized and invalidates the cache.
package pipeline

import (
	"fmt"
	"slices"
	"strings"

	"github.com/Tije-csv/RAG-2.2/internal/search"
)

// Path records how a query was answered.
type Path string

const (
	// PathDirect answers came from the generator alone.
	PathDirect Path = "direct"
	// PathRAG answers were grounded on retrieved documents.
	PathRAG Path = "rag"
)

// QueryResponse is the answer to one query.
type QueryResponse struct {
	Answer        string                   `json:"answer"`
	RetrievedDocs []search.RetrievalResult `json:"retrieved_docs"`
	Path          Path                     `json:"path"`

	// Cached is set on responses served from the query cache.
	Cached bool `json:"cached"`
}

// Clone copies r without sharing its document slice.
func (r QueryResponse) Clone() QueryResponse {
	r.RetrievedDocs = slices.Clone(r.RetrievedDocs)
	return r
}

// Stats describes the corpus and the query traffic so far.
type Stats struct {
	DocumentCount    int `json:"document_count"`
	CachedQueryCount int `json:"cached_query_count"`

	IndexedDocuments int  `json:"indexed_documents"`
	DenseVectors     int  `json:"dense_vectors"`
	PendingVectors   int  `json:"pending_vectors"`
	DenseTrained     bool `json:"dense_trained"`

	TotalQueries int64 `json:"total_queries"`
	CacheHits    int64 `json:"cache_hits"`

	Embedder  string `json:"embedder"`
	Generator string `json:"generator"`
}

// BuildPrompt renders the grounded prompt for query. Documents are joined
// by newlines in retrieval order.
func BuildPrompt(query string, docs []search.RetrievalResult) string {
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Text
	}
	return fmt.Sprintf("Context: %s\n\nQuestion: %s\n\nAnswer based on the context provided:",
		strings.Join(texts, "\n"), query)
}
