package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Tije-csv/RAG-2.2/internal/logging"
	"github.com/Tije-csv/RAG-2.2/internal/server"
	"github.com/Tije-csv/RAG-2.2/internal/watcher"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	var (
		addr  string
		watch []string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve the HTTP API for queries, document ingestion and health checks.

Endpoints:
  POST /query              answer a question
  POST /admin/documents    add documents (requires X-Admin-Key)
  GET  /health             service health and counters
  GET  /metrics            Prometheus metrics

Directories passed with --watch are ingested as files change.`,
		Example: `  # Serve on the configured address
  rag serve

  # Serve on another port and ingest ./docs as it changes
  rag serve --addr :9090 --watch ./docs`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts, addr, watch)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from server.addr)")
	cmd.Flags().StringSliceVar(&watch, "watch", nil, "Directories to watch and ingest")

	return cmd
}

func runServe(ctx context.Context, opts *globalOptions, addr string, watch []string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, cfg, err := opts.loadProject()
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger := slog.Default()
	if !opts.debug {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Server.LogLevel
		var cleanup func()
		logger, cleanup, err = logging.Setup(logCfg)
		if err != nil {
			return fmt.Errorf("failed to setup logging: %w", err)
		}
		defer cleanup()
	}

	rt, err := openWithLogger(ctx, opts, root, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.Close(); err != nil {
			logger.Warn("close runtime", slog.String("error", err.Error()))
		}
	}()

	srv := server.New(rt, server.Config{
		Addr:      cfg.Server.Addr,
		AdminKey:  cfg.Server.AdminKey,
		RateLimit: cfg.Server.RateLimit,
		Burst:     cfg.Server.Burst,
		Metrics:   rt.Metrics,
		Logger:    logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rt.RunSnapshots(gctx, cfg.SnapshotInterval())
		return nil
	})
	for _, dir := range watch {
		w, err := watcher.New(watcher.Options{
			DebounceWindow: cfg.WatchDebounce(),
			Logger:         logger,
		})
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := w.Start(gctx, dir); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch %s: %w", dir, err)
			}
			return nil
		})
		g.Go(func() error {
			watcher.Ingest(gctx, w.Events(), func(ctx context.Context, files []string) (int, error) {
				return rt.IngestPaths(ctx, files, nil)
			}, logger)
			return nil
		})
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case werr, ok := <-w.Errors():
					if !ok {
						return nil
					}
					logger.Warn("watcher error", slog.String("dir", dir), slog.String("error", werr.Error()))
				}
			}
		})
	}
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})

	return g.Wait()
}
