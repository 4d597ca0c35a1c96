package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"lowercases and drops stop words", "What is the Capital of France?", []string{"capital", "france"}},
		{"splits punctuation", "hybrid-search, rrf/bm25", []string{"hybrid", "search", "rrf", "bm25"}},
		{"splits snake and camel", "parse_HTTPRequest getUserId", []string{"parse", "http", "request", "get", "user", "id"}},
		{"drops single characters", "a b c go", []string{"go"}},
		{"keeps unicode letters", "Café crème", []string{"café", "crème"}},
		{"empty", "   ", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestSplitCamelCase(t *testing.T) {
	assert.Equal(t, []string{"get", "User", "By", "Id"}, SplitCamelCase("getUserById"))
	assert.Equal(t, []string{"HTTP", "Handler"}, SplitCamelCase("HTTPHandler"))
	assert.Equal(t, []string{}, SplitCamelCase(""))
}

func TestContentHash_IsStableHex(t *testing.T) {
	h := ContentHash("hello")

	assert.Len(t, h, 64)
	assert.Equal(t, h, ContentHash("hello"))
	assert.NotEqual(t, h, ContentHash("hello "))
}
