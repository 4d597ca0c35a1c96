package generate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// OpenAIConfig configures an OpenAI-compatible generator.
type OpenAIConfig struct {
	// BaseURL selects a compatible server; empty uses the OpenAI API.
	BaseURL string
	APIKey  string
	Model   string
	Logger  *slog.Logger
}

// OpenAIGenerator generates through langchaingo's OpenAI client.
type OpenAIGenerator struct {
	client llms.Model
	model  string
	logger *slog.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates an OpenAI-compatible generator.
func NewOpenAIGenerator(cfg OpenAIConfig) (*OpenAIGenerator, error) {
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}
	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	client, err := openai.New(opts...)
	if err != nil {
		return nil, rerrors.ConfigError("failed to create openai client", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIGenerator{
		client: client,
		model:  cfg.Model,
		logger: logger.With("component", "openai-generator"),
	}, nil
}

// Generate sends prompt as a single human message.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	o := effective(opts)
	var callOpts []llms.CallOption
	if o.Temperature > 0 {
		callOpts = append(callOpts, llms.WithTemperature(o.Temperature))
	}
	if o.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(o.MaxTokens))
	}
	if len(o.Stop) > 0 {
		callOpts = append(callOpts, llms.WithStopWords(o.Stop))
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}
	resp, err := g.client.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return "", classifyOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return "", rerrors.New(rerrors.ErrCodeGenerationFailed, "openai returned no choices", nil)
	}
	return resp.Choices[0].Content, nil
}

// classifyOpenAIError maps client errors by their status text; the client
// does not expose typed status codes.
func classifyOpenAIError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return rerrors.New(rerrors.ErrCodeRateLimited, "openai rate limited the request", err).
			WithDetail("provider", "openai")
	case strings.Contains(msg, "status code: 5"):
		return rerrors.New(rerrors.ErrCodeProviderUnavailable, "openai is unavailable", err).
			WithDetail("provider", "openai")
	}
	return rerrors.ProviderTransport("openai", err)
}

// Name identifies the provider and model.
func (g *OpenAIGenerator) Name() string {
	return "openai/" + g.model
}
