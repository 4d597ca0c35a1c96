package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:   maxRetries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	// Given: a function that fails twice then succeeds
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return errors.New("transient error")
		}
		return nil
	}

	// When: retrying
	err := Retry(context.Background(), fastConfig(3), fn)

	// Then: succeeds after 3 attempts
	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(2), func() error {
		attempts++
		return errors.New("persistent error")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 retries")
	assert.Equal(t, 3, attempts)
}

func TestRetry_RespectsContextCancellation(t *testing.T) {
	// Given: an already cancelled context
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, fastConfig(3), func() error {
		attempts++
		return nil
	})

	// Then: nothing runs
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, attempts)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastConfig(2), func() (int, error) {
		attempts++
		if attempts == 1 {
			return 0, errors.New("flaky")
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestRetryWithResult_ShouldRetryStopsOnPermanentError(t *testing.T) {
	// Given: a config that only retries retryable codes
	cfg := fastConfig(3)
	cfg.ShouldRetry = IsRetryable

	attempts := 0
	_, err := RetryWithResult(context.Background(), cfg, func() (string, error) {
		attempts++
		return "", DimensionMismatch(3, 2)
	})

	// Then: the error comes back untouched after one attempt
	assert.Equal(t, 1, attempts)
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.NotContains(t, err.Error(), "retries")
}

func TestRetryOnceConfig_RetriesRetryableErrorOnce(t *testing.T) {
	// Given: a store that keeps failing with a retryable code
	attempts := 0
	_, err := RetryWithResult(context.Background(), RetryOnceConfig(), func() ([]string, error) {
		attempts++
		return nil, fmt.Errorf("hydrate: %w", New(ErrCodeStoreIO, "locked", nil))
	})

	// Then: exactly one retry is made and the cause survives
	assert.Equal(t, 2, attempts)
	assert.True(t, errors.Is(err, ErrStoreIO))
}

func TestRetryOnceConfig_RecoversOnSecondAttempt(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), RetryOnceConfig(), func() (string, error) {
		attempts++
		if attempts == 1 {
			return "", New(ErrCodeStoreIO, "busy", nil)
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
}
