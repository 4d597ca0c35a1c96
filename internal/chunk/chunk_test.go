package chunk

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

// numbered returns "w0 w1 ... w(n-1)".
func numbered(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("w%d", i)
	}
	return strings.Join(parts, " ")
}

func TestFixedChunker_OverlappingWindows(t *testing.T) {
	// Given: 600 words with the default 250/50 window
	c := NewFixedChunker(DefaultChunkSize, DefaultOverlap)

	// When: chunking
	chunks := c.Chunk(numbered(600))

	// Then: windows start every 200 words and the last ends at the final word
	require.Len(t, chunks, 3)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "w0 "))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "w200 "))
	assert.True(t, strings.HasPrefix(chunks[2].Content, "w400 "))
	assert.True(t, strings.HasSuffix(chunks[2].Content, " w599"))
	assert.Len(t, strings.Fields(chunks[0].Content), 250)
	assert.Equal(t, 2, chunks[2].Index)
}

func TestFixedChunker_ShortTextIsOneChunk(t *testing.T) {
	c := NewFixedChunker(10, 2)

	chunks := c.Chunk("  alpha\n beta\tgamma ")

	require.Len(t, chunks, 1)
	assert.Equal(t, "alpha beta gamma", chunks[0].Content)
}

func TestFixedChunker_NoRedundantTail(t *testing.T) {
	// Given: text just longer than the window step
	c := NewFixedChunker(10, 2)

	// When: the first window already covers every word
	chunks := c.Chunk(numbered(9))

	// Then: no contained tail window is emitted
	assert.Len(t, chunks, 1)
}

func TestFixedChunker_BlankText(t *testing.T) {
	assert.Empty(t, NewFixedChunker(10, 2).Chunk(" \n\t "))
}

func TestNewFixedChunker_InvalidOverlapFallsBack(t *testing.T) {
	c := NewFixedChunker(10, 10)
	assert.Equal(t, 2, c.Overlap)

	c = NewFixedChunker(0, -1)
	assert.Equal(t, DefaultChunkSize, c.Size)
	assert.Equal(t, DefaultOverlap, c.Overlap)
}

func TestSplitSentences(t *testing.T) {
	got := SplitSentences("First one. Second?  Third!\n\"Quoted.\" Tail without stop")

	assert.Equal(t, []string{"First one.", "Second?", "Third!", "\"Quoted.\"", "Tail without stop"}, got)
}

func TestSentenceChunker_PacksWholeSentences(t *testing.T) {
	// Given: sentences of 3, 3 and 4 words with a 6 word limit
	c := NewSentenceChunker(6)

	// When: chunking
	chunks := c.Chunk("one two three. four five six. seven eight nine ten.")

	// Then: the first two share a chunk and the third starts a new one
	require.Len(t, chunks, 2)
	assert.Equal(t, "one two three. four five six.", chunks[0].Content)
	assert.Equal(t, "seven eight nine ten.", chunks[1].Content)
	assert.Equal(t, 1, chunks[1].Index)
}

func TestSentenceChunker_LongSentenceStandsAlone(t *testing.T) {
	c := NewSentenceChunker(3)

	chunks := c.Chunk("a b c d e f. g h.")

	require.Len(t, chunks, 2)
	assert.Equal(t, "a b c d e f.", chunks[0].Content)
	assert.Equal(t, "g h.", chunks[1].Content)
}

func TestMarkdownChunker_HeaderSections(t *testing.T) {
	// Given: nested markdown with frontmatter and an empty section
	content := `---
title: Guide
---
Intro text.

# Guide

Welcome.

## Install

Run the installer.

## Empty

# Next
Done.
`
	c := NewMarkdownChunker(NewFixedChunker(50, 5))

	// When: chunking
	chunks := c.Chunk(content)

	// Then: one chunk per non-empty section with its header path
	require.Len(t, chunks, 4)
	assert.Equal(t, "", chunks[0].Section)
	assert.Equal(t, "Intro text.", chunks[0].Content)
	assert.Equal(t, "Guide", chunks[1].Section)
	assert.Equal(t, "# Guide Welcome.", chunks[1].Content)
	assert.Equal(t, "Guide > Install", chunks[2].Section)
	assert.Contains(t, chunks[2].Content, "Run the installer.")
	assert.Equal(t, "Next", chunks[3].Section)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Index)
		assert.NotContains(t, ch.Content, "title: Guide")
	}
}

func TestSplit_SourcesAndTypes(t *testing.T) {
	// Given: a long text file, a short one and a markdown file
	inputs := []store.Input{
		{Content: numbered(25), Source: "long.txt", Type: store.MediaTXT},
		{Content: "short", Source: "short.txt", Type: store.MediaTXT},
		{Content: "# A\nalpha\n# B\nbeta\n", Source: "doc.md", Type: store.MediaMD},
	}

	// When: splitting with a 10/2 window
	out := Split(inputs, NewFixedChunker(10, 2))

	// Then: multi-chunk sources are suffixed and types are kept
	var sources []string
	for _, in := range out {
		sources = append(sources, in.Source)
	}
	assert.Equal(t, []string{
		"long.txt#0", "long.txt#1", "long.txt#2",
		"short.txt",
		"doc.md#0", "doc.md#1",
	}, sources)
	assert.Equal(t, store.MediaMD, out[len(out)-1].Type)
	assert.Equal(t, "# B beta", out[len(out)-1].Content)
}

func TestNew_Kinds(t *testing.T) {
	c, err := New(KindSentence, 100, 0)
	require.NoError(t, err)
	assert.IsType(t, &SentenceChunker{}, c)

	c, err = New("", 0, 0)
	require.NoError(t, err)
	assert.IsType(t, &FixedChunker{}, c)

	_, err = New("semantic", 100, 10)
	assert.Equal(t, rerrors.ErrCodeConfigInvalid, rerrors.GetCode(err))
}
