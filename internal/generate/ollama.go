package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// DefaultOllamaHost is the default Ollama API endpoint.
const DefaultOllamaHost = "http://localhost:11434"

// OllamaConfig configures the Ollama generator.
type OllamaConfig struct {
	Host   string
	Model  string
	Logger *slog.Logger
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Model    string `json:"model"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaGenerator calls the Ollama /api/generate endpoint without streaming.
type OllamaGenerator struct {
	client *http.Client
	cfg    OllamaConfig
	logger *slog.Logger
}

var _ Generator = (*OllamaGenerator)(nil)

// NewOllamaGenerator creates an Ollama generator. Deadlines come from the
// caller's context.
func NewOllamaGenerator(cfg OllamaConfig) *OllamaGenerator {
	if cfg.Host == "" {
		cfg.Host = DefaultOllamaHost
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaGenerator{
		client: &http.Client{Transport: &http.Transport{
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     30 * time.Second,
		}},
		cfg:    cfg,
		logger: logger,
	}
}

// Generate sends prompt to Ollama and returns the completion.
func (g *OllamaGenerator) Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	o := effective(opts)
	options := map[string]any{}
	if o.Temperature > 0 {
		options["temperature"] = o.Temperature
	}
	if o.MaxTokens > 0 {
		options["num_predict"] = o.MaxTokens
	}
	if len(o.Stop) > 0 {
		options["stop"] = o.Stop
	}

	body, err := json.Marshal(ollamaGenerateRequest{
		Model:   g.cfg.Model,
		Prompt:  prompt,
		Options: options,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.Host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return "", rerrors.ProviderTransport("ollama", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", rerrors.ProviderStatus("ollama", resp.StatusCode,
			strings.TrimSpace(string(respBody)), rerrors.ErrCodeGenerationFailed)
	}

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", rerrors.New(rerrors.ErrCodeGenerationFailed, "failed to decode ollama response", err)
	}

	g.logger.Debug("ollama generate",
		slog.String("model", g.cfg.Model),
		slog.Int("prompt_len", len(prompt)),
		slog.Duration("elapsed", time.Since(start)))
	return out.Response, nil
}

// Name identifies the provider and model.
func (g *OllamaGenerator) Name() string {
	return "ollama/" + g.cfg.Model
}
