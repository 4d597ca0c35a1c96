package mcp

import (
	"fmt"
	"strings"

	"github.com/Tije-csv/RAG-2.2/internal/pipeline"
)

// snippetLength caps the source excerpt shown per document.
const snippetLength = 200

// FormatQueryResponse renders an answer and its sources as markdown.
func FormatQueryResponse(query string, resp *pipeline.QueryResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Answer to \"%s\"\n\n", query)
	sb.WriteString(strings.TrimSpace(resp.Answer))
	sb.WriteString("\n")

	if resp.Path == pipeline.PathDirect {
		sb.WriteString("\n_Answered without retrieval._\n")
		return sb.String()
	}
	if len(resp.RetrievedDocs) == 0 {
		sb.WriteString("\n_No documents matched._\n")
		return sb.String()
	}

	fmt.Fprintf(&sb, "\n### Sources (%d)\n\n", len(resp.RetrievedDocs))
	for i, d := range resp.RetrievedDocs {
		fmt.Fprintf(&sb, "%d. **%s** (score: %.2f", i+1, d.Metadata.Source, d.Score)
		if d.InBothLists {
			sb.WriteString(", semantic + keyword")
		}
		sb.WriteString(")\n")
		fmt.Fprintf(&sb, "   > %s\n", snippet(d.Text))
	}
	if resp.Cached {
		sb.WriteString("\n_Served from cache._\n")
	}
	return sb.String()
}

// FormatStats renders engine statistics as markdown.
func FormatStats(s StatsOutput) string {
	var sb strings.Builder
	sb.WriteString("## Corpus Status\n\n")
	fmt.Fprintf(&sb, "- Documents: %d\n", s.Documents)
	fmt.Fprintf(&sb, "- Dense vectors: %d (pending %d, trained: %t)\n", s.DenseVectors, s.PendingVectors, s.DenseTrained)
	fmt.Fprintf(&sb, "- Cached queries: %d\n", s.CachedQueries)
	fmt.Fprintf(&sb, "- Queries: %d (cache hits %d)\n", s.TotalQueries, s.CacheHits)
	fmt.Fprintf(&sb, "- Embedder: %s\n", s.Embedder)
	fmt.Fprintf(&sb, "- Generator: %s\n", s.Generator)
	return sb.String()
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > snippetLength {
		return string(r[:snippetLength]) + "..."
	}
	return text
}

func toQueryOutput(resp *pipeline.QueryResponse) QueryOutput {
	out := QueryOutput{
		Answer:  resp.Answer,
		Path:    string(resp.Path),
		Cached:  resp.Cached,
		Sources: make([]SourceOutput, 0, len(resp.RetrievedDocs)),
	}
	for _, d := range resp.RetrievedDocs {
		out.Sources = append(out.Sources, SourceOutput{
			DocumentID: d.DocumentID,
			Source:     d.Metadata.Source,
			Score:      d.Score,
			Text:       d.Text,
		})
	}
	return out
}

func toStatsOutput(s pipeline.Stats) StatsOutput {
	return StatsOutput{
		Documents:      s.DocumentCount,
		CachedQueries:  s.CachedQueryCount,
		DenseVectors:   s.DenseVectors,
		PendingVectors: s.PendingVectors,
		DenseTrained:   s.DenseTrained,
		TotalQueries:   s.TotalQueries,
		CacheHits:      s.CacheHits,
		Embedder:       s.Embedder,
		Generator:      s.Generator,
	}
}
