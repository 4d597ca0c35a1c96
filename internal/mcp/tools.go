package mcp

import "github.com/Tije-csv/RAG-2.2/internal/store"

// QueryInput is the input schema of the query tool.
type QueryInput struct {
	Text string `json:"text" jsonschema:"the question or request to answer"`
}

// QueryOutput is the output schema of the query tool.
type QueryOutput struct {
	Answer  string         `json:"answer" jsonschema:"the generated answer"`
	Path    string         `json:"path" jsonschema:"direct or rag"`
	Cached  bool           `json:"cached" jsonschema:"true when served from the query cache"`
	Sources []SourceOutput `json:"sources" jsonschema:"documents the answer was grounded on"`
}

// SourceOutput is one retrieved document.
type SourceOutput struct {
	DocumentID string  `json:"document_id"`
	Source     string  `json:"source"`
	Score      float64 `json:"score" jsonschema:"fused relevance between 0 and 1"`
	Text       string  `json:"text"`
}

// AddDocumentsInput is the input schema of the add_documents tool.
type AddDocumentsInput struct {
	FilePaths     []string      `json:"file_paths,omitempty" jsonschema:"files to load and index"`
	DirectoryPath string        `json:"directory_path,omitempty" jsonschema:"directory to load recursively"`
	Documents     []store.Input `json:"documents,omitempty" jsonschema:"inline documents to index"`
}

// AddDocumentsOutput is the output schema of the add_documents tool.
type AddDocumentsOutput struct {
	Added int `json:"added" jsonschema:"number of new documents"`
}

// StatsInput is the input schema of the stats tool (no parameters).
type StatsInput struct{}

// StatsOutput is the output schema of the stats tool.
type StatsOutput struct {
	Documents      int    `json:"documents"`
	CachedQueries  int    `json:"cached_queries"`
	DenseVectors   int    `json:"dense_vectors"`
	PendingVectors int    `json:"pending_vectors"`
	DenseTrained   bool   `json:"dense_trained"`
	TotalQueries   int64  `json:"total_queries"`
	CacheHits      int64  `json:"cache_hits"`
	Embedder       string `json:"embedder"`
	Generator      string `json:"generator"`
}
