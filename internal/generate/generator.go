// Package generate produces answers from prompts through a language model
// provider. Providers map upstream failures onto typed errors so callers
// can tell an unreachable provider from a rate limit.
package generate

import "context"

// Safety thresholds for providers that support content filtering.
const (
	SafetyDefault = ""
	SafetyNone    = "none"
	SafetyLow     = "low"
	SafetyMedium  = "medium"
	SafetyHigh    = "high"
)

// GenerateOptions tunes a single generation call. Zero values leave the
// provider's defaults in place.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	Stop        []string

	// SafetyThreshold is the content blocking level. Providers without
	// content filtering ignore it.
	SafetyThreshold string
}

// Generator produces text for a prompt.
type Generator interface {
	// Generate returns the completion for prompt. Failures are
	// ProviderUnavailable or RateLimited when the provider is at fault.
	Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error)

	// Name identifies the provider and model.
	Name() string
}

func effective(opts *GenerateOptions) GenerateOptions {
	if opts == nil {
		return GenerateOptions{}
	}
	return *opts
}
