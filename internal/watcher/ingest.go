package watcher

import (
	"context"
	"log/slog"

	"github.com/Tije-csv/RAG-2.2/internal/loader"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

// IngestFunc indexes files and reports how many documents were new.
type IngestFunc func(ctx context.Context, files []string) (int, error)

// Ingest feeds created and modified files from batches to fn until
// batches closes or ctx is done. Deletions are logged only; the corpus
// is append-only.
func Ingest(ctx context.Context, batches <-chan []FileEvent, fn IngestFunc, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case batch, ok := <-batches:
			if !ok {
				return
			}
			files := IngestableFiles(batch)
			for _, e := range batch {
				if e.Operation == OpDelete {
					logger.Debug("deleted file stays indexed", slog.String("path", e.Path))
				}
			}
			if len(files) == 0 {
				continue
			}
			added, err := fn(ctx, files)
			if err != nil {
				logger.Warn("watch ingest failed",
					slog.Int("files", len(files)),
					slog.String("error", err.Error()))
				continue
			}
			logger.Info("watch ingest",
				slog.Int("files", len(files)),
				slog.Int("added", added))
		}
	}
}

// IngestableFiles returns the created or modified regular files in batch
// whose type the loader can extract text from.
func IngestableFiles(batch []FileEvent) []string {
	var files []string
	for _, e := range batch {
		if e.IsDir || (e.Operation != OpCreate && e.Operation != OpModify) {
			continue
		}
		t, ok := loader.DetectType(e.Path)
		if !ok || t == store.MediaImage {
			continue
		}
		files = append(files, e.Path)
	}
	return files
}
