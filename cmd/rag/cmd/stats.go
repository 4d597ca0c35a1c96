package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tije-csv/RAG-2.2/internal/index"
	"github.com/Tije-csv/RAG-2.2/internal/output"
	"github.com/Tije-csv/RAG-2.2/internal/pipeline"
	"github.com/Tije-csv/RAG-2.2/internal/telemetry"
)

// statsReport is the --json shape of rag stats.
type statsReport struct {
	Stats       pipeline.Stats     `json:"stats"`
	Insights    *telemetry.Summary `json:"insights"`
	Consistency *consistencyReport `json:"consistency,omitempty"`
}

type consistencyReport struct {
	Checked    int            `json:"checked"`
	Consistent bool           `json:"consistent"`
	Issues     map[string]int `json:"issues,omitempty"`
}

func newConsistencyReport(r *index.CheckResult) *consistencyReport {
	rep := &consistencyReport{Checked: r.Checked, Consistent: r.Consistent()}
	for _, issue := range r.Inconsistencies {
		if rep.Issues == nil {
			rep.Issues = make(map[string]int)
		}
		rep.Issues[issue.Type.String()]++
	}
	return rep
}

func newStatsCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		verify     bool
		days       int
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show corpus statistics and query insights",
		Long: `Show the corpus state and what queries have looked like recently:
answer paths, latency, the most frequent terms and queries that
retrieved nothing.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			rt, _, err := opts.openRuntime(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()

			stats, err := rt.Stats(ctx)
			if err != nil {
				return err
			}
			insights, err := rt.Insights(ctx, days, limit)
			if err != nil {
				return err
			}
			report := statsReport{Stats: stats, Insights: insights}
			if verify {
				result, err := rt.Verify(ctx)
				if err != nil {
					return err
				}
				report.Consistency = newConsistencyReport(result)
			}
			if jsonOutput {
				return writeJSON(cmd, report)
			}

			out := output.New(cmd.OutOrStdout())
			out.Header("Corpus")
			out.KeyValue("Data dir", rt.DataDir)
			out.KeyValue("Documents", stats.DocumentCount)
			out.KeyValue("Dense vectors", stats.DenseVectors)
			out.KeyValue("Pending vectors", stats.PendingVectors)
			out.KeyValue("Dense trained", stats.DenseTrained)
			out.KeyValue("Cached queries", stats.CachedQueryCount)
			out.KeyValue("Embedder", stats.Embedder)
			out.KeyValue("Generator", stats.Generator)
			if report.Consistency != nil {
				printConsistency(out, report.Consistency)
			}
			out.Newline()
			printInsights(out, insights)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&verify, "verify", false, "Check both indexes against the document store")
	cmd.Flags().IntVar(&days, "days", 30, "Days of query insights to summarize")
	cmd.Flags().IntVar(&limit, "limit", 10, "Top terms and zero-result queries to show")

	return cmd
}

func printConsistency(out *output.Writer, rep *consistencyReport) {
	if rep.Consistent {
		out.Successf("Indexes match %d stored documents", rep.Checked)
		return
	}
	out.Warningf("Indexes disagree with the document store (%d documents checked)", rep.Checked)
	kinds := make([]string, 0, len(rep.Issues))
	for k := range rep.Issues {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		out.KeyValue(k, rep.Issues[k])
	}
}

func printInsights(out *output.Writer, sum *telemetry.Summary) {
	out.Header(fmt.Sprintf("Queries (last %d days)", sum.Days))
	if sum.Total == 0 {
		out.Dim("no queries recorded")
		return
	}
	out.KeyValue("Total", sum.Total)
	out.KeyValue("Retrieval", sum.Paths[string(pipeline.PathRAG)])
	out.KeyValue("Direct", sum.Paths[string(pipeline.PathDirect)])

	buckets := []telemetry.LatencyBucket{
		telemetry.BucketUnder100ms, telemetry.BucketUnder500ms, telemetry.BucketUnder1s,
		telemetry.BucketUnder5s, telemetry.BucketOver5s,
	}
	for _, b := range buckets {
		n := sum.Latency[b]
		out.Statusf("", "%-9s %s %d", b, out.Bar(float64(n)/float64(sum.Total), 20), n)
	}

	if len(sum.TopTerms) > 0 {
		terms := make([]string, len(sum.TopTerms))
		for i, tc := range sum.TopTerms {
			terms[i] = fmt.Sprintf("%s (%d)", tc.Term, tc.Count)
		}
		out.KeyValue("Top terms", strings.Join(terms, ", "))
	}
	if len(sum.RecentMisses) > 0 {
		out.Newline()
		out.Warningf("%d recent queries retrieved nothing", len(sum.RecentMisses))
		for _, m := range sum.RecentMisses {
			out.Dim(m.Query)
		}
	}
}
