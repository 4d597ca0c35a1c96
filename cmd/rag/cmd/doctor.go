package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/output"
	"github.com/Tije-csv/RAG-2.2/internal/preflight"
)

// doctorReport is the --json shape of rag doctor.
type doctorReport struct {
	Root    string                  `json:"root"`
	Status  string                  `json:"status"`
	Results []preflight.CheckResult `json:"results"`
}

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	var (
		jsonOutput bool
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check that this project can index and answer queries",
		Long: `Check free disk space, the open file limit, the data directory and
the configured embedding and generation providers. Exits non-zero when
a required check fails.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			root, cfg, err := opts.loadProject()
			if err != nil {
				return err
			}

			checker := preflight.New(cfg, root,
				preflight.WithProbeTimeout(timeout),
				preflight.WithLogger(slog.Default()))
			results := checker.RunAll(ctx)
			status := preflight.SummaryStatus(results)

			if jsonOutput {
				if err := writeJSON(cmd, doctorReport{Root: root, Status: status, Results: results}); err != nil {
					return err
				}
			} else {
				printChecks(output.New(cmd.OutOrStdout()), root, status, results)
			}

			if preflight.HasCriticalFailures(results) {
				return rerrors.New(rerrors.ErrCodeConfigInvalid, "required checks failed", nil).
					WithSuggestion("Fix the failed checks above and run rag doctor again")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", preflight.DefaultProbeTimeout, "Timeout for each provider probe")
	return cmd
}

func printChecks(out *output.Writer, root, status string, results []preflight.CheckResult) {
	out.Header("Checks for " + root)
	for _, r := range results {
		line := fmt.Sprintf("%-17s %s", r.Name, r.Message)
		switch r.Status {
		case preflight.StatusPass:
			out.Success(line)
		case preflight.StatusWarn:
			out.Warning(line)
		default:
			out.Error(line)
		}
		if r.Details != "" {
			out.Dim("    " + r.Details)
		}
	}
	out.Newline()
	out.KeyValue("Status", strings.ToUpper(status))
}
