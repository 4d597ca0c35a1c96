package preflight

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/Tije-csv/RAG-2.2/internal/embed"
	"github.com/Tije-csv/RAG-2.2/internal/generate"
)

// CheckEmbedder builds the configured embedder and embeds a probe text.
// Ingestion and retrieval both need it.
func (c *Checker) CheckEmbedder(ctx context.Context) CheckResult {
	result := CheckResult{Name: "embedder", Required: true}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	e, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:   embed.ProviderType(c.cfg.Embeddings.Provider),
		Model:      c.cfg.Embeddings.Model,
		Host:       c.cfg.Embeddings.Host,
		APIKey:     c.cfg.Embeddings.APIKey,
		Dimensions: c.cfg.Embeddings.Dimensions,
		Timeout:    c.timeout,
		Logger:     c.logger,
	})
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	defer func() { _ = e.Close() }()

	if _, err := e.Embed(ctx, "preflight"); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s: %v", e.ModelName(), err)
		return result
	}
	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s (%d dimensions)", e.ModelName(), e.Dimensions())
	return result
}

// CheckGenerator verifies the generation provider can be reached without
// spending a completion. Retrieval works without it, so failures are not
// critical.
func (c *Checker) CheckGenerator(ctx context.Context) CheckResult {
	result := CheckResult{Name: "generator"}
	gen := c.cfg.Generation

	switch strings.ToLower(gen.Provider) {
	case generate.ProviderEcho:
		result.Status = StatusPass
		result.Message = "echo (offline)"
	case generate.ProviderOpenAI:
		if gen.APIKey == "" {
			result.Status = StatusFail
			result.Message = "no API key configured"
			result.Details = "Set RAG_OPENAI_API_KEY or generation.api_key"
			return result
		}
		result.Status = StatusPass
		result.Message = "openai " + gen.Model
	case generate.ProviderOllama, "":
		host := gen.Host
		if host == "" {
			host = generate.DefaultOllamaHost
		}
		models, err := c.ollamaModels(ctx, host)
		if err != nil {
			result.Status = StatusFail
			result.Message = fmt.Sprintf("ollama unreachable at %s", host)
			result.Details = err.Error()
			return result
		}
		if gen.Model != "" && !hasModel(models, gen.Model) {
			result.Status = StatusWarn
			result.Message = fmt.Sprintf("model %s not pulled", gen.Model)
			result.Details = "Run 'ollama pull " + gen.Model + "'"
			return result
		}
		result.Status = StatusPass
		result.Message = "ollama " + gen.Model
	default:
		result.Status = StatusFail
		result.Message = fmt.Sprintf("unknown provider %q", gen.Provider)
	}
	return result
}

// ollamaModels lists the models an Ollama server has pulled.
func (c *Checker) ollamaModels(ctx context.Context, host string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(host, "/")+"/api/tags", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var body struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode tags: %w", err)
	}
	names := make([]string, len(body.Models))
	for i, m := range body.Models {
		names[i] = m.Name
	}
	return names, nil
}

// hasModel matches model against pulled names, treating a missing tag
// as ":latest".
func hasModel(models []string, model string) bool {
	want := model
	if !strings.Contains(want, ":") {
		want += ":latest"
	}
	for _, m := range models {
		if m == model || m == want {
			return true
		}
	}
	return false
}
