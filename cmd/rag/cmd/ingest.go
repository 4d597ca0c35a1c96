package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/output"
)

func newIngestCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest PATH...",
		Short: "Add files and directories to the corpus",
		Long: `Load, chunk, embed and index files. Directories are walked
recursively; hidden directories are skipped. Content already in the corpus
is not added twice.

Supported types: .txt, .md, .pdf, .docx, .xlsx`,
		Example: `  # Ingest a directory
  rag ingest ./docs

  # Ingest single files without a model server
  rag ingest --offline notes.md report.pdf`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(cmd, opts, args)
		},
	}
}

func runIngest(cmd *cobra.Command, opts *globalOptions, paths []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := output.New(cmd.OutOrStdout())

	files, dirs, err := splitPaths(paths)
	if err != nil {
		return err
	}

	rt, _, err := opts.openRuntime(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	start := time.Now()
	added, err := rt.IngestPaths(ctx, files, dirs)
	if err != nil {
		return err
	}

	stats, err := rt.Stats(ctx)
	if err != nil {
		return err
	}
	out.Successf("Added %d new documents in %s", added, time.Since(start).Round(time.Millisecond))
	out.KeyValue("Documents", stats.DocumentCount)
	out.KeyValue("Dense vectors", stats.DenseVectors)
	if stats.PendingVectors > 0 {
		out.KeyValue("Pending vectors", stats.PendingVectors)
	}
	return nil
}

// splitPaths separates files from directories, failing on missing paths.
func splitPaths(paths []string) (files, dirs []string, err error) {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, nil, rerrors.New(rerrors.ErrCodeFileNotFound, "path not found: "+p, err).
					WithSuggestion("Check the path and try again")
			}
			return nil, nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if info.IsDir() {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
	}
	return files, dirs, nil
}
