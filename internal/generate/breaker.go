package generate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// BreakerConfig configures the circuit breaker around a generator.
type BreakerConfig struct {
	// Failures is the number of consecutive provider failures that opens
	// the circuit (default: 5).
	Failures uint32

	// Cooldown is how long the circuit stays open before a probe call is
	// let through (default: 30s).
	Cooldown time.Duration

	Logger *slog.Logger
}

// Breaker stops calling a failing provider for a cooldown period. While
// open it fails fast with ProviderUnavailable. Rate limits and caller
// cancellation do not count as provider failures.
type Breaker struct {
	inner Generator
	cb    *gobreaker.CircuitBreaker[string]
}

var _ Generator = (*Breaker)(nil)

// NewBreaker wraps inner with a circuit breaker.
func NewBreaker(inner Generator, cfg BreakerConfig) *Breaker {
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: 1,
		Timeout:     cfg.Cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, rerrors.ErrProviderUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("generation circuit breaker state change",
				slog.String("provider", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &Breaker{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker[string](settings),
	}
}

// Generate calls the wrapped generator unless the circuit is open.
func (b *Breaker) Generate(ctx context.Context, prompt string, opts *GenerateOptions) (string, error) {
	out, err := b.cb.Execute(func() (string, error) {
		return b.inner.Generate(ctx, prompt, opts)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", rerrors.New(rerrors.ErrCodeProviderUnavailable,
			b.inner.Name()+" is failing, circuit open", err).
			WithSuggestion("Check the generation provider; calls resume after the cooldown")
	}
	return out, err
}

// State reports the circuit state: closed, half-open or open.
func (b *Breaker) State() string {
	return b.cb.State().String()
}

// Name identifies the wrapped provider.
func (b *Breaker) Name() string {
	return b.inner.Name()
}
