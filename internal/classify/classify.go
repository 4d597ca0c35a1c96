// Package classify decides whether a query needs retrieval. Factual
// queries go through retrieval; generative ones (write, compose, imagine)
// go straight to the generator.
package classify

import (
	"context"
	"strings"
)

// Label is the routing decision for a query.
type Label string

const (
	// LabelFactual queries are answered from retrieved context.
	LabelFactual Label = "factual"
	// LabelGenerative queries are sent to the generator as-is.
	LabelGenerative Label = "generative"
)

// Classification is a label with the classifier's confidence in [0,1].
type Classification struct {
	Label      Label
	Confidence float64
}

// Classifier labels queries.
type Classifier interface {
	Classify(ctx context.Context, query string) (Classification, error)
}

// normalizeQuery normalizes a query for cache keys.
func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
