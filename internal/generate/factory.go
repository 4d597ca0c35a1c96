package generate

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// Provider names.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderEcho   = "echo"
)

// Options selects and configures a generator.
type Options struct {
	Provider string
	Model    string
	Host     string
	APIKey   string

	// BreakerFailures enables the circuit breaker when positive.
	BreakerFailures uint32
	BreakerCooldown time.Duration

	Logger *slog.Logger
}

// New creates the generator named by opts.Provider, wrapped in a Breaker
// when BreakerFailures is set. The echo provider is never wrapped.
func New(opts Options) (Generator, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var g Generator
	switch strings.ToLower(opts.Provider) {
	case ProviderOllama, "":
		g = NewOllamaGenerator(OllamaConfig{Host: opts.Host, Model: opts.Model, Logger: logger})
	case ProviderOpenAI:
		baseURL := opts.Host
		if baseURL == DefaultOllamaHost {
			baseURL = ""
		}
		og, err := NewOpenAIGenerator(OpenAIConfig{
			BaseURL: baseURL,
			APIKey:  opts.APIKey,
			Model:   opts.Model,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		g = og
	case ProviderEcho:
		return EchoGenerator{}, nil
	default:
		return nil, rerrors.ConfigError(fmt.Sprintf("unknown generation provider %q", opts.Provider), nil).
			WithSuggestion("Use one of: ollama, openai, echo")
	}

	if opts.BreakerFailures > 0 {
		g = NewBreaker(g, BreakerConfig{
			Failures: opts.BreakerFailures,
			Cooldown: opts.BreakerCooldown,
			Logger:   logger,
		})
	}
	return g, nil
}
