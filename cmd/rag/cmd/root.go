// Package cmd provides the rag CLI commands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Tije-csv/RAG-2.2/internal/config"
	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/logging"
	"github.com/Tije-csv/RAG-2.2/internal/pipeline"
	"github.com/Tije-csv/RAG-2.2/internal/profiling"
	"github.com/Tije-csv/RAG-2.2/pkg/version"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	debug   bool
	dir     string
	offline bool

	profile profiling.Options

	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "rag",
		Short: "Hybrid retrieval-augmented question answering over local documents",
		Long: `rag indexes local documents (text, Markdown, PDF, DOCX, XLSX) into a
dense vector index and a BM25 index, fuses both rankings and answers
questions with a language model grounded on the best matches.

Answers to repeated questions are served from a query cache until new
documents are ingested.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return opts.start()
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			return opts.stop()
		},
	}
	cmd.SetVersionTemplate("rag version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging to ~/.rag/logs/")
	cmd.PersistentFlags().StringVarP(&opts.dir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().BoolVar(&opts.offline, "offline", false, "Use static embeddings and the echo generator")
	cmd.PersistentFlags().StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Heap, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))
	cmd.AddCommand(newIngestCmd(opts))
	cmd.AddCommand(newQueryCmd(opts))
	cmd.AddCommand(newStatsCmd(opts))
	cmd.AddCommand(newEvalCmd(opts))
	cmd.AddCommand(newDoctorCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints a user-facing error.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), rerrors.FormatForUser(err, false))
	}
	return err
}

// start enables debug logging and profiling when requested.
func (o *globalOptions) start() error {
	if o.debug {
		logger, cleanup, err := logging.Setup(logging.DebugConfig())
		if err != nil {
			return fmt.Errorf("failed to setup debug logging: %w", err)
		}
		o.loggingCleanup = cleanup
		slog.SetDefault(logger)
		slog.Debug("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if o.profile.Enabled() {
		session, err := profiling.Start(o.profile)
		if err != nil {
			return err
		}
		o.profiler = session
	}
	return nil
}

// stop flushes profiles and closes the debug log.
func (o *globalOptions) stop() error {
	err := o.profiler.Stop()
	o.profiler = nil
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
	if err != nil {
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	return nil
}

// loadProject resolves the project root and its effective configuration.
func (o *globalOptions) loadProject() (string, *config.Config, error) {
	root, err := config.FindProjectRoot(o.dir)
	if err != nil {
		return "", nil, err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return "", nil, err
	}
	if o.offline {
		cfg.Embeddings.Provider = "static"
		cfg.Generation.Provider = "echo"
		if cfg.Classifier.Mode != "pattern" {
			cfg.Classifier.Mode = "pattern"
		}
	}
	return root, cfg, nil
}

// openRuntime loads the project and opens its engine.
func (o *globalOptions) openRuntime(ctx context.Context) (*pipeline.Runtime, *config.Config, error) {
	root, cfg, err := o.loadProject()
	if err != nil {
		return nil, nil, err
	}
	rt, err := openWithLogger(ctx, o, root, cfg, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	return rt, cfg, nil
}

func openWithLogger(ctx context.Context, o *globalOptions, root string, cfg *config.Config, logger *slog.Logger) (*pipeline.Runtime, error) {
	rt, err := pipeline.Open(ctx, cfg, root, logger)
	if err != nil {
		return nil, err
	}
	slog.Debug("engine opened",
		slog.String("root", root),
		slog.String("data_dir", rt.DataDir),
		slog.Bool("offline", o.offline))
	return rt, nil
}
