package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tije-csv/RAG-2.2/internal/output"
	"github.com/Tije-csv/RAG-2.2/internal/pipeline"
	"github.com/Tije-csv/RAG-2.2/internal/search"
)

type queryOptions struct {
	jsonOutput   bool
	retrieveOnly bool
	topK         int
}

func newQueryCmd(opts *globalOptions) *cobra.Command {
	qo := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query TEXT",
		Short: "Answer a question from the corpus",
		Long: `Answer a question. Factual questions are answered from the top
matching documents; generative requests go straight to the model.

With --retrieve-only the ranked documents are printed and no answer is
generated.`,
		Example: `  rag query "What is the capital of France?"
  rag query --retrieve-only --top-k 3 "hybrid search"
  rag query --json "Who wrote the report?"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, opts, qo, strings.Join(args, " "))
		},
	}

	cmd.Flags().BoolVar(&qo.jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&qo.retrieveOnly, "retrieve-only", false, "Print ranked documents without generating an answer")
	cmd.Flags().IntVarP(&qo.topK, "top-k", "k", 0, "Documents to retrieve with --retrieve-only (default from retrieval.top_k)")

	return cmd
}

func runQuery(cmd *cobra.Command, opts *globalOptions, qo *queryOptions, text string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rt, _, err := opts.openRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	if qo.retrieveOnly {
		docs, err := rt.Retrieve(ctx, text, search.Options{TopK: qo.topK})
		if err != nil {
			return err
		}
		if qo.jsonOutput {
			return writeJSON(cmd, docs)
		}
		printSources(output.New(cmd.OutOrStdout()), docs)
		return nil
	}

	resp, err := rt.ProcessQuery(ctx, text)
	if err != nil {
		return err
	}
	if qo.jsonOutput {
		return writeJSON(cmd, resp)
	}
	printAnswer(output.New(cmd.OutOrStdout()), resp)
	return nil
}

func printAnswer(out *output.Writer, resp *pipeline.QueryResponse) {
	out.Header("Answer")
	out.Panel(resp.Answer)
	switch {
	case resp.Path == pipeline.PathDirect:
		out.Dim("answered without retrieval")
	case resp.Cached:
		out.Dim("served from the query cache")
	}
	if len(resp.RetrievedDocs) > 0 {
		out.Newline()
		printSources(out, resp.RetrievedDocs)
	}
}

func printSources(out *output.Writer, docs []search.RetrievalResult) {
	out.Header(fmt.Sprintf("Sources (%d)", len(docs)))
	if len(docs) == 0 {
		out.Dim("no matching documents")
		return
	}
	for i, d := range docs {
		out.Statusf(fmt.Sprintf("%2d.", i+1), "%s %s %.4f", d.Metadata.Source, out.Bar(d.Score, 10), d.Score)
	}
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
