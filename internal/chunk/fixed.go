package chunk

import "strings"

// FixedChunker emits windows of Size words that start every Size-Overlap
// words. The last window always ends at the final word.
type FixedChunker struct {
	Size    int
	Overlap int
}

// NewFixedChunker creates a fixed window chunker. Out of range values fall
// back to the defaults.
func NewFixedChunker(size, overlap int) *FixedChunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = min(DefaultOverlap, size/5)
	}
	return &FixedChunker{Size: size, Overlap: overlap}
}

// Chunk splits text into overlapping word windows.
func (c *FixedChunker) Chunk(text string) []Chunk {
	tokens := words(text)
	if len(tokens) == 0 {
		return nil
	}

	step := c.Size - c.Overlap
	var chunks []Chunk
	for start := 0; start < len(tokens); start += step {
		end := min(start+c.Size, len(tokens))
		chunks = append(chunks, Chunk{
			Content: strings.Join(tokens[start:end], " "),
			Index:   len(chunks),
		})
		if end == len(tokens) {
			break
		}
	}
	return chunks
}
