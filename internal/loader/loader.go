// Package loader extracts text from files on disk for ingestion.
//
// Supported formats are plain text, markdown, PDF, DOCX and XLSX. Images
// are recognized but no OCR backend is available, so they are reported as
// unsupported and skipped during directory loads.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/panjf2000/ants/v2"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

// DefaultMaxFileSize caps files read by the loader.
const DefaultMaxFileSize = 50 * 1024 * 1024

var extensions = map[string]store.MediaType{
	".txt":  store.MediaTXT,
	".md":   store.MediaMD,
	".pdf":  store.MediaPDF,
	".docx": store.MediaDOCX,
	".xlsx": store.MediaXLSX,
	".png":  store.MediaImage,
	".jpg":  store.MediaImage,
	".jpeg": store.MediaImage,
}

// DetectType maps a path's extension to a media type.
func DetectType(path string) (store.MediaType, bool) {
	t, ok := extensions[strings.ToLower(filepath.Ext(path))]
	return t, ok
}

// Options configures a Loader.
type Options struct {
	// Workers bounds concurrent extraction. Defaults to NumCPU.
	Workers     int
	MaxFileSize int64
	Logger      *slog.Logger
}

// Loader extracts text from files.
type Loader struct {
	workers     int
	maxFileSize int64
	logger      *slog.Logger
}

// New creates a Loader.
func New(opts Options) *Loader {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loader{workers: opts.Workers, maxFileSize: opts.MaxFileSize, logger: opts.Logger}
}

// Load returns the text of the file at path and its media type.
// Unknown extensions and images fail with UnsupportedMediaType.
func (l *Loader) Load(path string) (string, store.MediaType, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mediaType, ok := extensions[ext]
	if !ok || mediaType == store.MediaImage {
		err := rerrors.UnsupportedMediaType(path, ext)
		if mediaType == store.MediaImage {
			err = err.WithSuggestion("OCR is not available; convert images to text before ingestion")
		}
		return "", "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", "", rerrors.New(rerrors.ErrCodeFileNotFound, "file not found: "+path, err).
				WithDetail("path", path)
		}
		return "", "", rerrors.New(rerrors.ErrCodeFilePermission, "cannot stat "+path, err)
	}
	if info.IsDir() {
		return "", "", rerrors.New(rerrors.ErrCodeInvalidPath, "path is a directory: "+path, nil)
	}
	if info.Size() > l.maxFileSize {
		return "", "", rerrors.New(rerrors.ErrCodeInvalidInput,
			fmt.Sprintf("file exceeds %d bytes: %s", l.maxFileSize, path), nil)
	}

	var text string
	switch mediaType {
	case store.MediaPDF:
		text, err = loadPDF(path)
	case store.MediaDOCX:
		text, err = loadDOCX(path)
	case store.MediaXLSX:
		text, err = loadXLSX(path)
	default:
		text, err = loadText(path)
	}
	if err != nil {
		return "", "", rerrors.New(rerrors.ErrCodeFileCorrupt,
			fmt.Sprintf("failed to extract %s", path), err).WithDetail("path", path)
	}
	return strings.TrimSpace(text), mediaType, nil
}

func loadText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("not valid UTF-8")
	}
	return string(data), nil
}

// LoadFiles loads each path concurrently. Files that fail are logged and
// skipped; results keep the order of paths.
func (l *Loader) LoadFiles(ctx context.Context, paths []string) ([]store.Input, error) {
	pool, err := ants.NewPool(l.workers)
	if err != nil {
		return nil, fmt.Errorf("create loader pool: %w", err)
	}
	defer pool.Release()

	results := make([]*store.Input, len(paths))
	var wg sync.WaitGroup
	for i, path := range paths {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[i] = l.loadOne(path)
		})
		if submitErr != nil {
			wg.Done()
			return nil, fmt.Errorf("submit %s: %w", path, submitErr)
		}
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputs := make([]store.Input, 0, len(paths))
	for _, in := range results {
		if in != nil {
			inputs = append(inputs, *in)
		}
	}
	return inputs, nil
}

func (l *Loader) loadOne(path string) *store.Input {
	text, mediaType, err := l.Load(path)
	if err != nil {
		level := slog.LevelError
		if errors.Is(err, rerrors.ErrUnsupportedMediaType) {
			level = slog.LevelWarn
		}
		l.logger.Log(context.Background(), level, "skipping file",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil
	}
	if text == "" {
		l.logger.Debug("skipping empty file", slog.String("path", path))
		return nil
	}
	return &store.Input{Content: text, Source: path, Type: mediaType}
}

// LoadDirectory recursively loads every recognized file under dir. Hidden
// directories are not descended into, paths excluded by a .gitignore or
// .ragignore are skipped and files with unknown extensions are ignored.
// Recognized files that cannot be extracted are logged and skipped.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) ([]store.Input, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeFileNotFound, "directory not found: "+dir, err)
	}
	if !info.IsDir() {
		return nil, rerrors.New(rerrors.ErrCodeInvalidPath, "not a directory: "+dir, nil)
	}

	var (
		paths   []string
		ignores ignoreSet
	)
	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			l.logger.Warn("walk error", slog.String("path", p), slog.String("error", walkErr.Error()))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel := ""
		if p != dir {
			r, err := filepath.Rel(dir, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(r)
			if ignores.ignored(rel, d.IsDir()) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		if d.IsDir() {
			if p != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			for _, name := range IgnoreFiles {
				err := ignores.load(filepath.Join(p, name), rel)
				if err != nil && !errors.Is(err, fs.ErrNotExist) {
					l.logger.Warn("ignore file unreadable", slog.String("path", filepath.Join(p, name)), slog.String("error", err.Error()))
				}
			}
			return nil
		}
		if _, ok := DetectType(p); ok && d.Type().IsRegular() {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(paths)
	l.logger.Debug("loading directory", slog.String("dir", dir), slog.Int("files", len(paths)))
	return l.LoadFiles(ctx, paths)
}
