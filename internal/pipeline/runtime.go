package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/Tije-csv/RAG-2.2/internal/cache"
	"github.com/Tije-csv/RAG-2.2/internal/chunk"
	"github.com/Tije-csv/RAG-2.2/internal/classify"
	"github.com/Tije-csv/RAG-2.2/internal/config"
	"github.com/Tije-csv/RAG-2.2/internal/embed"
	"github.com/Tije-csv/RAG-2.2/internal/generate"
	"github.com/Tije-csv/RAG-2.2/internal/index"
	"github.com/Tije-csv/RAG-2.2/internal/loader"
	"github.com/Tije-csv/RAG-2.2/internal/metrics"
	"github.com/Tije-csv/RAG-2.2/internal/search"
	"github.com/Tije-csv/RAG-2.2/internal/store"
	"github.com/Tije-csv/RAG-2.2/internal/telemetry"
)

// Files under the data directory.
const (
	DocumentsFile = "documents.db"
	SnapshotFile  = "dense.hnsw"
	CacheDir      = "cache"
)

// TelemetryFlushInterval is how often query insights are persisted.
const TelemetryFlushInterval = time.Minute

// Runtime is a fully wired engine over one data directory. It holds the
// directory lock until Close.
type Runtime struct {
	*Orchestrator

	Loader  *loader.Loader
	Chunker chunk.Chunker
	Metrics *metrics.Metrics
	DataDir string

	lock   *store.DataDirLock
	docs   *store.SQLiteDocumentStore
	corpus *index.Corpus
	cache  cache.Cache[QueryResponse]
	embed  embed.Embedder
	tel    *telemetry.Collector
	telDB  *telemetry.SQLiteStore
	logger *slog.Logger
}

// Open locks the data directory for the project at root, opens the
// document store and cache, restores the corpus and wires the providers
// named by cfg.
func Open(ctx context.Context, cfg *config.Config, root string, logger *slog.Logger) (rt *Runtime, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	dataDir := cfg.DataPath(root)

	rt = &Runtime{DataDir: dataDir, Metrics: metrics.New(), logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	if rt.lock, err = store.LockDataDir(dataDir); err != nil {
		return rt, err
	}
	if rt.docs, err = store.OpenDocumentStore(filepath.Join(dataDir, DocumentsFile)); err != nil {
		return rt, err
	}
	if rt.telDB, err = telemetry.NewSQLiteStore(ctx, rt.docs.DB()); err != nil {
		return rt, err
	}
	rt.tel = telemetry.New(rt.telDB, telemetry.Config{FlushInterval: TelemetryFlushInterval, Logger: logger})

	rt.embed, err = embed.NewEmbedder(ctx, embed.Options{
		Provider:   embed.ProviderType(cfg.Embeddings.Provider),
		Model:      cfg.Embeddings.Model,
		Host:       cfg.Embeddings.Host,
		APIKey:     cfg.Embeddings.APIKey,
		Dimensions: cfg.Embeddings.Dimensions,
		CacheSize:  cfg.Embeddings.CacheSize,
		Timeout:    cfg.EmbeddingTimeout(),
		Logger:     logger,
	})
	if err != nil {
		return rt, err
	}

	rt.corpus, err = index.New(index.Config{
		Dimensions:   rt.embed.Dimensions(),
		MinTrainSize: cfg.Retrieval.MinTrainSize,
		HNSWM:        cfg.Retrieval.HNSWM,
		HNSWEfSearch: cfg.Retrieval.HNSWEfSearch,
		BM25:         store.DefaultBM25Config(),
		Logger:       logger,
	})
	if err != nil {
		return rt, err
	}
	if err = rt.corpus.Load(ctx, rt.docs, rt.snapshotPath()); err != nil {
		return rt, err
	}
	if ok, qerr := rt.corpus.QuickCheck(ctx, rt.docs); qerr == nil && !ok {
		logger.Warn("indexes disagree with the document store, run rag stats --verify")
	}

	cacheDir := ""
	if cfg.Cache.Backend == cache.BackendBadger {
		cacheDir = filepath.Join(dataDir, CacheDir)
	}
	rt.cache, err = cache.New[QueryResponse](cache.Options{
		Backend:    cfg.Cache.Backend,
		MaxEntries: cfg.Cache.MaxEntries,
		Dir:        cacheDir,
		Logger:     logger,
	})
	if err != nil {
		return rt, err
	}

	gen, err := generate.New(generate.Options{
		Provider:        cfg.Generation.Provider,
		Model:           cfg.Generation.Model,
		Host:            cfg.Generation.Host,
		APIKey:          cfg.Generation.APIKey,
		BreakerFailures: cfg.Generation.BreakerFailures,
		BreakerCooldown: cfg.BreakerCooldown(),
		Logger:          logger,
	})
	if err != nil {
		return rt, err
	}
	classifier, err := classify.New(cfg.Classifier.Mode, gen, cfg.Classifier.CacheSize, logger)
	if err != nil {
		return rt, err
	}

	rt.Chunker, err = chunk.New(cfg.Ingest.Chunker, cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)
	if err != nil {
		return rt, err
	}
	rt.Loader = loader.New(loader.Options{Workers: cfg.Ingest.Workers, Logger: logger})

	retriever := search.NewRetriever(rt.corpus, rt.docs, search.Config{
		TopK:        cfg.Retrieval.TopK,
		Weights:     search.Weights{Dense: cfg.Retrieval.DenseWeight, Lexical: cfg.Retrieval.LexicalWeight},
		RRFConstant: cfg.Retrieval.RRFConstant,
		Logger:      logger,
	})

	rt.Orchestrator, err = New(Deps{
		Store:      rt.docs,
		Corpus:     rt.corpus,
		Retriever:  retriever,
		Embedder:   rt.embed,
		Generator:  gen,
		Classifier: classifier,
		Cache:      rt.cache,
		Metrics:    rt.Metrics,
		Telemetry:  rt.tel,
		Logger:     logger,
	}, Config{
		TopK:              cfg.Retrieval.TopK,
		CacheTTL:          cfg.CacheTTL(),
		GenerationTimeout: cfg.GenerationTimeout(),
		Generate: generate.GenerateOptions{
			Temperature:     cfg.Generation.Temperature,
			MaxTokens:       cfg.Generation.MaxTokens,
			SafetyThreshold: cfg.Generation.Safety,
		},
	})
	return rt, err
}

func (rt *Runtime) snapshotPath() string {
	return filepath.Join(rt.DataDir, SnapshotFile)
}

// IngestPaths loads files and directories, chunks them and adds the
// chunks. Unreadable files are skipped; the result counts new documents.
func (rt *Runtime) IngestPaths(ctx context.Context, files []string, dirs []string) (int, error) {
	inputs, err := rt.Loader.LoadFiles(ctx, files)
	if err != nil {
		return 0, err
	}
	for _, dir := range dirs {
		more, err := rt.Loader.LoadDirectory(ctx, dir)
		if err != nil {
			return 0, fmt.Errorf("load %s: %w", dir, err)
		}
		inputs = append(inputs, more...)
	}
	return rt.AddDocuments(ctx, chunk.Split(inputs, rt.Chunker))
}

// Snapshot writes the dense index to the data directory.
func (rt *Runtime) Snapshot() error {
	if rt.corpus == nil {
		return nil
	}
	start := time.Now()
	if err := rt.corpus.Save(rt.snapshotPath()); err != nil {
		return fmt.Errorf("snapshot dense index: %w", err)
	}
	rt.logger.Debug("dense index snapshotted", slog.Duration("took", time.Since(start)))
	return nil
}

// RunSnapshots snapshots every interval until ctx is done.
func (rt *Runtime) RunSnapshots(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rt.Snapshot(); err != nil {
				rt.logger.Warn("periodic snapshot failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Insights flushes pending query telemetry and summarizes the last days
// days, with up to limit terms and zero-result queries.
func (rt *Runtime) Insights(ctx context.Context, days, limit int) (*telemetry.Summary, error) {
	if err := rt.tel.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flush telemetry: %w", err)
	}
	return rt.telDB.Summary(ctx, days, limit)
}

// Verify compares both indexes with the document store.
func (rt *Runtime) Verify(ctx context.Context) (*index.CheckResult, error) {
	return rt.corpus.Check(ctx, rt.docs)
}

// Close snapshots the dense index and releases every resource.
func (rt *Runtime) Close() error {
	var errs []error
	if rt.Orchestrator != nil {
		errs = append(errs, rt.Snapshot())
	}
	if rt.tel != nil {
		errs = append(errs, rt.tel.Close())
	}
	if rt.cache != nil {
		errs = append(errs, rt.cache.Close())
	}
	if rt.embed != nil {
		errs = append(errs, rt.embed.Close())
	}
	if rt.docs != nil {
		errs = append(errs, rt.docs.Close())
	}
	if rt.lock != nil {
		errs = append(errs, rt.lock.Unlock())
	}
	return errors.Join(errs...)
}
