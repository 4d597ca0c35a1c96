package embed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/logging"
)

// fakeOllama answers /api/embed with 3-dim vectors, one per input.
func fakeOllama(t *testing.T, status *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if s := status.Load(); s != 0 {
			w.WriteHeader(int(s))
			_, _ = w.Write([]byte("nope"))
			return
		}

		var req ollamaEmbedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		n := 1
		if inputs, ok := req.Input.([]any); ok {
			n = len(inputs)
		}
		resp := ollamaEmbedResponse{Model: req.Model}
		for i := 0; i < n; i++ {
			resp.Embeddings = append(resp.Embeddings, []float64{3, 4, 0})
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOllamaEmbedder_DetectsDimensionsAndNormalizes(t *testing.T) {
	// Given: a server returning 3-dim vectors
	var status atomic.Int32
	srv := fakeOllama(t, &status)

	// When: creating an embedder without explicit dimensions
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Logger: logging.Nop()})
	require.NoError(t, err)

	// Then: dimensions are probed and vectors come back unit length
	assert.Equal(t, 3, e.Dimensions())
	vecs, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-6)
	assert.InDelta(t, 0.8, vecs[0][1], 1e-6)
	assert.True(t, e.Available(context.Background()))
}

func TestOllamaEmbedder_MapsRateLimit(t *testing.T) {
	var status atomic.Int32
	srv := fakeOllama(t, &status)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 3, Logger: logging.Nop()})
	require.NoError(t, err)

	// When: the server answers 429
	status.Store(http.StatusTooManyRequests)
	_, err = e.Embed(context.Background(), "x")

	// Then: the error is RateLimited
	assert.True(t, errors.Is(err, rerrors.ErrRateLimited))
}

func TestOllamaEmbedder_DimensionMismatch(t *testing.T) {
	var status atomic.Int32
	srv := fakeOllama(t, &status)
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: srv.URL, Dimensions: 5, Logger: logging.Nop()})
	require.NoError(t, err)

	_, err = e.Embed(context.Background(), "x")

	assert.True(t, errors.Is(err, rerrors.ErrDimensionMismatch))
}

func TestOllamaEmbedder_UnreachableIsProviderUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{Host: url, Logger: logging.Nop()})

	assert.True(t, errors.Is(err, rerrors.ErrProviderUnavailable))
}
