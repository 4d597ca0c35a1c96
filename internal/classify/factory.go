package classify

import (
	"fmt"
	"log/slog"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/generate"
)

// Modes accepted by New.
const (
	ModePattern = "pattern"
	ModeLLM     = "llm"
	ModeHybrid  = "hybrid"
)

// New builds the classifier for mode. The llm and hybrid modes need gen.
func New(mode string, gen generate.Generator, cacheSize int, logger *slog.Logger) (Classifier, error) {
	switch mode {
	case ModePattern, "":
		return NewPatternClassifier(), nil
	case ModeLLM:
		if gen == nil {
			return nil, rerrors.ConfigError("llm classifier needs a generator", nil)
		}
		return NewLLMClassifier(gen, 0), nil
	case ModeHybrid:
		var llm Classifier
		if gen != nil {
			llm = NewLLMClassifier(gen, 0)
		}
		return NewHybridClassifier(llm, cacheSize, logger), nil
	}
	return nil, rerrors.ConfigError(fmt.Sprintf("unknown classifier mode %q", mode), nil).
		WithSuggestion("Use one of: pattern, llm, hybrid")
}
