package classify

import (
	"context"
	"regexp"
	"strings"
)

var (
	// Creative requests: "write a poem", "compose ...", "imagine ..."
	generativePattern = regexp.MustCompile(`(?i)^(please\s+)?(write|compose|create|generate|draft|imagine|invent|brainstorm|pretend|rewrite|translate|tell me a (story|joke|poem))\b`)

	// Creative artifacts anywhere in the query
	artifactPattern = regexp.MustCompile(`(?i)\b(poem|haiku|story|limerick|song|lyrics|essay|slogan|joke)\b`)

	// Information seeking: questions and lookup verbs
	factualPattern = regexp.MustCompile(`(?i)^(what|who|whom|whose|when|where|which|why|how|is|are|was|were|does|do|did|can|could|should|define|list|explain|describe|summari[sz]e|compare|find|show)\b`)
)

// PatternClassifier labels queries with regular expressions. It never
// fails and defaults to factual, which keeps retrieval in the loop.
type PatternClassifier struct{}

var _ Classifier = (*PatternClassifier)(nil)

// NewPatternClassifier creates a pattern-based classifier.
func NewPatternClassifier() *PatternClassifier {
	return &PatternClassifier{}
}

// Classify labels query. The error is always nil.
func (p *PatternClassifier) Classify(_ context.Context, query string) (Classification, error) {
	query = strings.TrimSpace(query)
	switch {
	case query == "":
		return Classification{Label: LabelFactual, Confidence: 0.5}, nil
	case generativePattern.MatchString(query):
		return Classification{Label: LabelGenerative, Confidence: 0.9}, nil
	case factualPattern.MatchString(query), strings.HasSuffix(query, "?"):
		return Classification{Label: LabelFactual, Confidence: 0.9}, nil
	case artifactPattern.MatchString(query):
		return Classification{Label: LabelGenerative, Confidence: 0.7}, nil
	}
	return Classification{Label: LabelFactual, Confidence: 0.6}, nil
}
