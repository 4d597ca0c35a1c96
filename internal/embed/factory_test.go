package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/logging"
)

func TestNewEmbedder_StaticWithCache(t *testing.T) {
	e, err := NewEmbedder(context.Background(), Options{
		Provider:   ProviderStatic,
		Dimensions: 128,
		CacheSize:  10,
		Logger:     logging.Nop(),
	})
	require.NoError(t, err)

	cached, ok := e.(*CachedEmbedder)
	require.True(t, ok)
	assert.IsType(t, &StaticEmbedder{}, cached.Inner())
	assert.Equal(t, 128, e.Dimensions())
}

func TestNewEmbedder_StaticWithoutCache(t *testing.T) {
	e, err := NewEmbedder(context.Background(), Options{Provider: "STATIC", Logger: logging.Nop()})
	require.NoError(t, err)

	assert.IsType(t, &StaticEmbedder{}, e)
	assert.Equal(t, StaticDimensions, e.Dimensions())
}

func TestNewEmbedder_UnknownProvider(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Options{Provider: "mlx"})

	assert.True(t, errors.Is(err, &rerrors.RAGError{Code: rerrors.ErrCodeConfigInvalid}))
}

func TestNewEmbedder_OpenAIRequiresDimensions(t *testing.T) {
	_, err := NewEmbedder(context.Background(), Options{Provider: ProviderOpenAI, Model: "text-embedding-3-small"})

	assert.Error(t, err)
}
