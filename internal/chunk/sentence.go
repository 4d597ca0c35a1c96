package chunk

import (
	"regexp"
	"strings"
)

// sentenceEnd matches terminal punctuation, optional closing quotes or
// brackets, then whitespace.
var sentenceEnd = regexp.MustCompile(`[.!?]+["')\]]*\s+`)

// SentenceChunker packs whole sentences into chunks of at most Size words.
// A single sentence longer than Size becomes its own chunk.
type SentenceChunker struct {
	Size int
}

// NewSentenceChunker creates a sentence packing chunker.
func NewSentenceChunker(size int) *SentenceChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &SentenceChunker{Size: size}
}

// Chunk packs sentences in order until the next one would overflow.
func (c *SentenceChunker) Chunk(text string) []Chunk {
	var (
		chunks  []Chunk
		current []string
		length  int
	)
	flush := func() {
		if len(current) == 0 {
			return
		}
		chunks = append(chunks, Chunk{Content: strings.Join(current, " "), Index: len(chunks)})
		current = current[:0]
		length = 0
	}

	for _, sent := range SplitSentences(text) {
		n := len(words(sent))
		if length+n > c.Size {
			flush()
		}
		current = append(current, sent)
		length += n
	}
	flush()
	return chunks
}

// SplitSentences splits text on sentence-ending punctuation. Whitespace
// inside each sentence is collapsed; blank sentences are dropped.
func SplitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEnd.FindAllStringIndex(text, -1) {
		if s := collapse(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if s := collapse(text[last:]); s != "" {
		out = append(out, s)
	}
	return out
}

func collapse(s string) string {
	return strings.Join(words(s), " ")
}
