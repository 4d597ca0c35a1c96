// Package chunk splits loaded text into retrievable pieces before ingestion.
// Sizes are counted in whitespace-separated words.
package chunk

import (
	"fmt"
	"strings"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

// Chunk size defaults.
const (
	DefaultChunkSize = 250
	DefaultOverlap   = 50
)

// Chunker kinds accepted by New.
const (
	KindFixed    = "fixed"
	KindSentence = "sentence"
)

// Chunk is a retrievable piece of a larger text.
type Chunk struct {
	Content string
	// Index is the chunk's position within its source, starting at 0.
	Index int
	// Section is the markdown header path, "A > B", when known.
	Section string
}

// Chunker splits text into chunks. Blank text yields no chunks.
type Chunker interface {
	Chunk(text string) []Chunk
}

// New returns the chunker named by kind.
func New(kind string, size, overlap int) (Chunker, error) {
	switch kind {
	case KindFixed, "":
		return NewFixedChunker(size, overlap), nil
	case KindSentence:
		return NewSentenceChunker(size), nil
	}
	return nil, rerrors.ConfigError(fmt.Sprintf("unknown chunker %q", kind), nil).
		WithSuggestion("Use one of: fixed, sentence")
}

// Split chunks every input. Markdown inputs are split on headers first.
// Each chunk inherits the input's source and type; multi-chunk sources get
// a "#n" suffix so chunks stay distinguishable in results.
func Split(inputs []store.Input, c Chunker) []store.Input {
	md := NewMarkdownChunker(c)

	var out []store.Input
	for _, in := range inputs {
		var chunks []Chunk
		if in.Type == store.MediaMD {
			chunks = md.Chunk(in.Content)
		} else {
			chunks = c.Chunk(in.Content)
		}
		for _, ch := range chunks {
			source := in.Source
			if len(chunks) > 1 {
				source = fmt.Sprintf("%s#%d", in.Source, ch.Index)
			}
			out = append(out, store.Input{Content: ch.Content, Source: source, Type: in.Type})
		}
	}
	return out
}

func words(text string) []string {
	return strings.Fields(text)
}
