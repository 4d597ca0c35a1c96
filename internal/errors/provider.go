package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"strconv"
)

// ProviderStatus maps a non-2xx HTTP status from an upstream provider to
// a typed error. 429 is RateLimited; 5xx is ProviderUnavailable; anything
// else is reported under fallbackCode.
func ProviderStatus(provider string, status int, body string, fallbackCode string) *RAGError {
	msg := fmt.Sprintf("%s returned status %d", provider, status)
	if body != "" {
		msg += ": " + body
	}

	var err *RAGError
	switch {
	case status == http.StatusTooManyRequests:
		err = New(ErrCodeRateLimited, msg, nil).
			WithSuggestion("Reduce request rate or raise the provider quota")
	case status >= 500:
		err = New(ErrCodeProviderUnavailable, msg, nil)
	default:
		err = New(fallbackCode, msg, nil)
	}
	return err.WithDetail("provider", provider).WithDetail("status", strconv.Itoa(status))
}

// ProviderTransport wraps a transport failure talking to provider.
// Context deadline and cancellation pass through unchanged so callers can
// tell them apart.
func ProviderTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(err, context.Canceled) {
		return err
	}
	return New(ErrCodeProviderUnavailable, provider+" is unreachable", err).
		WithDetail("provider", provider)
}
