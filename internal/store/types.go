// Package store holds the storage primitives of the retrieval engine: the
// dense HNSW index, the in-process BM25 lexical index, and the SQLite
// document store that owns content.
package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// MediaType identifies where a document's text came from.
type MediaType string

const (
	MediaPDF   MediaType = "pdf"
	MediaImage MediaType = "image"
	MediaDOCX  MediaType = "docx"
	MediaXLSX  MediaType = "xlsx"
	MediaTXT   MediaType = "txt"
	MediaMD    MediaType = "md"
	// MediaText is the default for inline content.
	MediaText MediaType = "text"
)

// Input is text waiting to be ingested.
type Input struct {
	Content string    `json:"content"`
	Source  string    `json:"source"`
	Type    MediaType `json:"type"`
}

// Document is an ingested unit of text. ID is the hex SHA-256 of Content,
// so identical content always maps to the same document.
type Document struct {
	ID        string
	Content   string
	Source    string
	Type      MediaType
	Embedding []float32
	CreatedAt time.Time
}

// ContentHash returns the document ID for content.
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// DenseHit is a dense index match. Lower Distance is closer.
type DenseHit struct {
	Position uint64
	Distance float32
}

// LexicalHit is a BM25 match. Higher Score is better.
type LexicalHit struct {
	Position int
	Score    float64
}

// DocumentStore persists documents keyed by content hash.
type DocumentStore interface {
	// Upsert stores doc and reports whether a new row was created.
	// Re-upserting identical content updates source and type only.
	Upsert(ctx context.Context, doc *Document) (id string, created bool, err error)

	// Get returns the document or a NotFound error.
	Get(ctx context.Context, id string) (*Document, error)

	// GetByHash looks a document up by its content.
	GetByHash(ctx context.Context, content string) (*Document, error)

	// GetMany returns the documents for ids in the same order, skipping
	// ids that are absent.
	GetMany(ctx context.Context, ids []string) ([]*Document, error)

	// Count returns the number of stored documents.
	Count(ctx context.Context) (int, error)

	// All visits every document in insertion order until fn errors.
	All(ctx context.Context, fn func(*Document) error) error

	Close() error
}
