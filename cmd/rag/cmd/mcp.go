package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Tije-csv/RAG-2.2/internal/logging"
	"github.com/Tije-csv/RAG-2.2/internal/mcp"
)

func newMCPCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the engine as an MCP server over stdio",
		Long: `Serve the query, add_documents and stats tools to an MCP client over
stdio. Logs go to ~/.rag/logs/server.log because stdout carries the
protocol.`,
		Example: `  # Register with an MCP client
  rag mcp --dir /path/to/project`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context(), opts)
		},
	}
}

func runMCP(ctx context.Context, opts *globalOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cfg, err := opts.loadProject()
	if err != nil {
		return err
	}

	level := cfg.Server.LogLevel
	if opts.debug {
		level = "debug"
	}
	cleanup, err := logging.SetupMCPMode(level)
	if err != nil {
		return err
	}
	defer cleanup()

	rt, err := openWithLogger(ctx, opts, root, cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			slog.Warn("close runtime", slog.String("error", err.Error()))
		}
	}()

	srv, err := mcp.NewServer(rt, slog.Default())
	if err != nil {
		return err
	}
	return srv.Serve(ctx, "stdio")
}
