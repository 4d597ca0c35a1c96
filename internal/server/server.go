// Package server exposes the engine over HTTP.
//
//	POST /query            {"text": "..."}
//	POST /admin/documents  {"file_paths": [...], "directory_path": "...", "documents": [...]}
//	GET  /health
//	GET  /metrics
//
// Admin routes require the X-Admin-Key header.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Tije-csv/RAG-2.2/internal/metrics"
	"github.com/Tije-csv/RAG-2.2/internal/pipeline"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

const (
	// maxBodyBytes bounds request bodies.
	maxBodyBytes = 10 << 20

	shutdownTimeout = 10 * time.Second
)

// Engine is the part of the pipeline the server drives.
type Engine interface {
	ProcessQuery(ctx context.Context, text string) (*pipeline.QueryResponse, error)
	AddDocuments(ctx context.Context, inputs []store.Input) (int, error)
	IngestPaths(ctx context.Context, files []string, dirs []string) (int, error)
	Stats(ctx context.Context) (pipeline.Stats, error)
}

// Config configures a Server.
type Config struct {
	Addr string
	// AdminKey guards the admin routes. Empty disables them.
	AdminKey string
	// RateLimit is requests per second across API routes. 0 disables it.
	RateLimit float64
	Burst     int
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Server serves the HTTP API.
type Server struct {
	engine  Engine
	cfg     Config
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Server.
func New(engine Engine, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{engine: engine, cfg: cfg, logger: cfg.Logger, now: time.Now}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = max(1, int(cfg.RateLimit))
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return s
}

// Handler returns the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /query", s.limited(http.HandlerFunc(s.handleQuery)))
	mux.Handle("POST /admin/documents", s.limited(s.admin(http.HandlerFunc(s.handleAddDocuments))))
	mux.Handle("POST /admin/add-documents", s.limited(s.admin(http.HandlerFunc(s.handleAddDocuments))))
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.cfg.Metrics != nil {
		mux.Handle("GET /metrics", s.cfg.Metrics.Handler())
	}

	var h http.Handler = mux
	h = s.cfg.Metrics.Middleware(h)
	h = s.accessLog(h)
	h = requestID(h)
	return h
}

// ListenAndServe serves until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", slog.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
