package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tije-csv/RAG-2.2/internal/eval"
	"github.com/Tije-csv/RAG-2.2/internal/output"
)

func newEvalCmd(opts *globalOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "eval FILE",
		Short: "Measure retrieval precision and recall against a query set",
		Long: `Run every query in a YAML query set through hybrid retrieval and score
the retrieved sources against the expected ones. Expected entries match a
source exactly or as a prefix, so "guide.md" matches "guide.md#2".

Query set format:

  top_k: 5
  queries:
    - id: capital
      query: What is the capital of France?
      expected: [geo/france.txt]`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			set, err := eval.LoadQuerySet(args[0])
			if err != nil {
				return err
			}

			rt, _, err := opts.openRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			report, err := eval.Run(ctx, rt, set)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}
			printReport(output.New(cmd.OutOrStdout()), report)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printReport(out *output.Writer, report *eval.Report) {
	out.Header(fmt.Sprintf("Evaluation (%d queries)", len(report.Results)))
	for _, r := range report.Results {
		if r.Error != "" {
			out.Errorf("%s: %s", r.Spec.ID, r.Error)
			continue
		}
		out.Statusf("•", "%s  P=%.2f R=%.2f  %s", r.Spec.ID, r.Precision, r.Recall, r.Duration.Round(time.Microsecond))
	}
	out.Newline()
	out.KeyValue("Mean precision", fmt.Sprintf("%.3f", report.MeanPrecision))
	out.KeyValue("Mean recall", fmt.Sprintf("%.3f", report.MeanRecall))
	if report.Failed > 0 {
		out.Warningf("%d queries failed", report.Failed)
	}
}
