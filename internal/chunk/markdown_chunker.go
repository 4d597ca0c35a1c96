package chunk

import (
	"regexp"
	"strings"
)

var (
	// Matches headers: # Title, ## Title, etc.
	headerPattern = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

	// Matches frontmatter: ---\n...\n---
	frontmatterPattern = regexp.MustCompile(`(?s)^---\n(.+?)\n---\n*`)
)

// MarkdownChunker splits markdown on headers and hands each section body to
// an inner chunker. Every chunk records the header path it came from, and
// sections keep their header line so the title stays searchable.
type MarkdownChunker struct {
	inner Chunker
}

// NewMarkdownChunker wraps inner. A nil inner uses the fixed default.
func NewMarkdownChunker(inner Chunker) *MarkdownChunker {
	if inner == nil {
		inner = NewFixedChunker(DefaultChunkSize, DefaultOverlap)
	}
	return &MarkdownChunker{inner: inner}
}

// section is a header and the lines under it.
type section struct {
	path    string
	content strings.Builder
}

// Chunk splits text into header sections, then chunks each section.
// YAML frontmatter is dropped; sections holding only a header are skipped.
func (c *MarkdownChunker) Chunk(text string) []Chunk {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if m := frontmatterPattern.FindString(text); m != "" {
		text = text[len(m):]
	}

	var chunks []Chunk
	for _, sec := range parseSections(text) {
		body := sec.content.String()
		if !hasBody(body) {
			continue
		}
		for _, ch := range c.inner.Chunk(body) {
			ch.Index = len(chunks)
			ch.Section = sec.path
			chunks = append(chunks, ch)
		}
	}
	return chunks
}

// parseSections groups lines under their nearest header. Text before the
// first header forms a section with an empty path.
func parseSections(text string) []*section {
	var (
		sections []*section
		stack    [6]string
		current  = &section{}
	)

	for _, line := range strings.Split(text, "\n") {
		m := headerPattern.FindStringSubmatch(line)
		if m == nil {
			current.content.WriteString(line)
			current.content.WriteByte('\n')
			continue
		}

		sections = append(sections, current)

		level := len(m[1])
		stack[level-1] = strings.TrimSpace(m[2])
		for i := level; i < len(stack); i++ {
			stack[i] = ""
		}
		var parts []string
		for _, title := range stack[:level] {
			if title != "" {
				parts = append(parts, title)
			}
		}

		current = &section{path: strings.Join(parts, " > ")}
		current.content.WriteString(line)
		current.content.WriteByte('\n')
	}
	return append(sections, current)
}

// hasBody reports whether body has text besides a header line.
func hasBody(body string) bool {
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) != "" && !headerPattern.MatchString(line) {
			return true
		}
	}
	return false
}
