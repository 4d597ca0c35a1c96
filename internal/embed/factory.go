package embed

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// ProviderType names an embedding provider.
type ProviderType string

const (
	// ProviderStatic uses feature hashing; no network.
	ProviderStatic ProviderType = "static"

	// ProviderOllama uses a local Ollama server.
	ProviderOllama ProviderType = "ollama"

	// ProviderOpenAI uses an OpenAI-compatible API through langchaingo.
	ProviderOpenAI ProviderType = "openai"
)

// Options selects and configures an embedder.
type Options struct {
	Provider   ProviderType
	Model      string
	Host       string
	APIKey     string
	Dimensions int

	// CacheSize wraps the embedder in a CachedEmbedder when positive.
	CacheSize int
	Timeout   time.Duration
	Logger    *slog.Logger
}

// NewEmbedder creates the embedder named by opts.Provider. There is no
// silent fallback: an unreachable provider is an error.
func NewEmbedder(ctx context.Context, opts Options) (Embedder, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		embedder Embedder
		err      error
	)
	switch ProviderType(strings.ToLower(string(opts.Provider))) {
	case ProviderStatic, "":
		embedder = NewStaticEmbedder(opts.Dimensions)
	case ProviderOllama:
		embedder, err = NewOllamaEmbedder(ctx, OllamaConfig{
			Host:       opts.Host,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Timeout:    opts.Timeout,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("ollama unavailable: %w", err)
		}
	case ProviderOpenAI:
		baseURL := opts.Host
		if baseURL == DefaultOllamaHost {
			baseURL = ""
		}
		embedder, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    baseURL,
			APIKey:     opts.APIKey,
			Model:      opts.Model,
			Dimensions: opts.Dimensions,
			Logger:     logger,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, rerrors.ConfigError(fmt.Sprintf("unknown embeddings provider %q", opts.Provider), nil).
			WithSuggestion("Use one of: static, ollama, openai")
	}

	logger.Debug("embedder created",
		slog.String("provider", string(opts.Provider)),
		slog.String("model", embedder.ModelName()),
		slog.Int("dimensions", embedder.Dimensions()))

	if opts.CacheSize > 0 {
		embedder = NewCachedEmbedder(embedder, opts.CacheSize)
	}
	return embedder, nil
}
