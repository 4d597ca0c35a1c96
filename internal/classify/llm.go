package classify

import (
	"context"
	"fmt"
	"strings"
	"time"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/generate"
)

// DefaultLLMTimeout bounds one classification call.
const DefaultLLMTimeout = 5 * time.Second

const classificationPrompt = `You are a query router. Classify the user's query into exactly ONE category:

FACTUAL - the query asks for information that should come from a document collection.
Examples: "what is the capital of France", "list the supported file types", "who wrote the report"

GENERATIVE - the query asks for new creative content that needs no documents.
Examples: "write a poem about autumn", "imagine a city on Mars", "compose a limerick"

Respond with ONLY one word: FACTUAL or GENERATIVE.

Query: %s

Classification:`

// LLMClassifier asks a generator for a zero-shot label.
type LLMClassifier struct {
	gen     generate.Generator
	timeout time.Duration
}

var _ Classifier = (*LLMClassifier)(nil)

// NewLLMClassifier creates a classifier backed by gen.
func NewLLMClassifier(gen generate.Generator, timeout time.Duration) *LLMClassifier {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	return &LLMClassifier{gen: gen, timeout: timeout}
}

// Classify prompts the model and parses its one-word answer. An answer
// naming neither label is an error.
func (l *LLMClassifier) Classify(ctx context.Context, query string) (Classification, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Classification{Label: LabelFactual, Confidence: 0.5}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	out, err := l.gen.Generate(ctx, fmt.Sprintf(classificationPrompt, query), &generate.GenerateOptions{MaxTokens: 8})
	if err != nil {
		return Classification{}, fmt.Errorf("classify query: %w", err)
	}

	label, ok := parseClassificationResponse(out)
	if !ok {
		return Classification{}, rerrors.New(rerrors.ErrCodeInternal,
			fmt.Sprintf("unrecognized classification %q", strings.TrimSpace(out)), nil)
	}
	return Classification{Label: label, Confidence: 0.8}, nil
}

func parseClassificationResponse(response string) (Label, bool) {
	response = strings.ToUpper(strings.TrimSpace(response))

	switch response {
	case "FACTUAL":
		return LabelFactual, true
	case "GENERATIVE":
		return LabelGenerative, true
	}

	hasFactual := strings.Contains(response, "FACTUAL")
	hasGenerative := strings.Contains(response, "GENERATIVE")
	switch {
	case hasGenerative && !hasFactual:
		return LabelGenerative, true
	case hasFactual && !hasGenerative:
		return LabelFactual, true
	}
	return "", false
}
