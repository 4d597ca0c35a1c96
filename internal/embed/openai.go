package embed

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible embedder.
type OpenAIConfig struct {
	// BaseURL selects a compatible server; empty uses the OpenAI API.
	BaseURL string
	APIKey  string
	Model   string

	// Dimensions is the expected vector length; it is not probed.
	Dimensions int
	Logger     *slog.Logger
}

// OpenAIEmbedder embeds through langchaingo's OpenAI client.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
	dims     int
	logger   *slog.Logger
}

var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an OpenAI-compatible embedder.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Dimensions <= 0 {
		return nil, rerrors.ConfigError("openai embeddings need explicit dimensions", nil).
			WithSuggestion("Set embeddings.dimensions to the model's vector length")
	}
	token := cfg.APIKey
	if token == "" {
		// Local compatible servers accept any token.
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithEmbeddingModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, rerrors.ConfigError("failed to create openai client", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, rerrors.ConfigError("failed to create openai embedder", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIEmbedder{
		embedder: embedder,
		model:    cfg.Model,
		dims:     cfg.Dimensions,
		logger:   logger.With("component", "openai-embedder"),
	}, nil
}

// Embed generates the embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	e.logger.Debug("generating embeddings", "count", len(texts))

	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, rerrors.ProviderTransport("openai", err)
	}
	if len(vecs) != len(texts) {
		return nil, rerrors.New(rerrors.ErrCodeEmbeddingFailed,
			fmt.Sprintf("openai returned %d embeddings for %d inputs", len(vecs), len(texts)), nil)
	}
	for i, v := range vecs {
		if len(v) != e.dims {
			return nil, rerrors.DimensionMismatch(e.dims, len(v))
		}
		vecs[i] = normalizeVector(v)
	}
	return vecs, nil
}

// Dimensions returns the configured embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int {
	return e.dims
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}

// Available reports true; the client is stateless.
func (e *OpenAIEmbedder) Available(context.Context) bool {
	return true
}

// Close is a no-op.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
