package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderStatus_MapsStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{429, ErrRateLimited},
		{500, ErrProviderUnavailable},
		{503, ErrProviderUnavailable},
		{400, &RAGError{Code: ErrCodeGenerationFailed}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := ProviderStatus("ollama", tt.status, "busy", ErrCodeGenerationFailed)
			assert.True(t, errors.Is(err, tt.want))
			assert.Equal(t, "ollama", err.Details["provider"])
			assert.Contains(t, err.Error(), "busy")
		})
	}
}

func TestProviderTransport_KeepsContextErrors(t *testing.T) {
	// Given: a deadline and a connection failure
	deadline := fmt.Errorf("post: %w", context.DeadlineExceeded)
	refused := errors.New("connection refused")

	// Then: deadlines pass through, other failures become ProviderUnavailable
	assert.Equal(t, deadline, ProviderTransport("ollama", deadline))
	assert.True(t, errors.Is(ProviderTransport("ollama", refused), ErrProviderUnavailable))
	assert.True(t, IsRetryable(ProviderTransport("ollama", refused)))
	assert.Nil(t, ProviderTransport("ollama", nil))
}
