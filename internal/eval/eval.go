// Package eval measures retrieval quality against a YAML query set.
//
//	queries:
//	  - id: geo-1
//	    query: capital of France
//	    expected: [geo/france.txt]
//
// Expected entries match a result's source exactly or as a prefix, so
// "report.pdf" also matches its chunks "report.pdf#2".
package eval

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Tije-csv/RAG-2.2/internal/search"
)

// QuerySpec is one query with the sources that should be retrieved.
type QuerySpec struct {
	ID       string   `yaml:"id" json:"id"`
	Query    string   `yaml:"query" json:"query"`
	Expected []string `yaml:"expected" json:"expected"`
	Notes    string   `yaml:"notes,omitempty" json:"notes,omitempty"`
}

// QuerySet is the file format.
type QuerySet struct {
	// TopK overrides the configured top k when positive.
	TopK    int         `yaml:"top_k,omitempty" json:"top_k,omitempty"`
	Queries []QuerySpec `yaml:"queries" json:"queries"`
}

// LoadQuerySet reads and validates a query set.
func LoadQuerySet(path string) (*QuerySet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query set %s: %w", path, err)
	}
	var set QuerySet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse query set %s: %w", path, err)
	}
	for i, q := range set.Queries {
		if strings.TrimSpace(q.Query) == "" {
			return nil, fmt.Errorf("query set %s: entry %d has no query", path, i+1)
		}
		if q.ID == "" {
			set.Queries[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	return &set, nil
}

// Retriever returns ranked documents for a query.
type Retriever interface {
	Retrieve(ctx context.Context, text string, opts search.Options) ([]search.RetrievalResult, error)
}

// Result is the outcome of one query.
type Result struct {
	Spec      QuerySpec     `json:"spec"`
	Retrieved []string      `json:"retrieved"`
	Precision float64       `json:"precision"`
	Recall    float64       `json:"recall"`
	Duration  time.Duration `json:"duration_ns"`
	Error     string        `json:"error,omitempty"`
}

// Report summarizes a run.
type Report struct {
	Timestamp     time.Time `json:"timestamp"`
	Results       []Result  `json:"results"`
	MeanPrecision float64   `json:"mean_precision"`
	MeanRecall    float64   `json:"mean_recall"`
	Failed        int       `json:"failed"`
}

// Run evaluates every query in set. A failing query is recorded with
// zero scores and does not stop the run.
func Run(ctx context.Context, r Retriever, set *QuerySet) (*Report, error) {
	report := &Report{Timestamp: time.Now(), Results: make([]Result, 0, len(set.Queries))}
	for _, spec := range set.Queries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		docs, err := r.Retrieve(ctx, spec.Query, search.Options{TopK: set.TopK})
		res := Result{Spec: spec, Duration: time.Since(start), Retrieved: []string{}}
		if err != nil {
			res.Error = err.Error()
			report.Failed++
		} else {
			for _, d := range docs {
				res.Retrieved = append(res.Retrieved, d.Metadata.Source)
			}
			res.Precision, res.Recall = Score(res.Retrieved, spec.Expected)
		}
		report.Results = append(report.Results, res)
		report.MeanPrecision += res.Precision
		report.MeanRecall += res.Recall
	}
	if n := float64(len(report.Results)); n > 0 {
		report.MeanPrecision /= n
		report.MeanRecall /= n
	}
	return report, nil
}

// Score computes precision and recall of retrieved sources against
// expected ones. Precision is the share of retrieved results matching any
// expected entry; recall is the share of expected entries matched by any
// result. An empty side scores zero, except that no expectations and no
// results is a perfect score.
func Score(retrieved, expected []string) (precision, recall float64) {
	if len(retrieved) == 0 && len(expected) == 0 {
		return 1, 1
	}
	if len(retrieved) == 0 || len(expected) == 0 {
		return 0, 0
	}

	relevant := 0
	for _, r := range retrieved {
		for _, e := range expected {
			if matches(r, e) {
				relevant++
				break
			}
		}
	}
	found := 0
	for _, e := range expected {
		for _, r := range retrieved {
			if matches(r, e) {
				found++
				break
			}
		}
	}
	return float64(relevant) / float64(len(retrieved)), float64(found) / float64(len(expected))
}

func matches(source, expected string) bool {
	return source == expected || strings.HasPrefix(source, expected)
}
