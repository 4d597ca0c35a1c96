package generate

import (
	"context"
	"strings"
)

// EchoGenerator answers with the prompt's question, or the whole prompt
// when there is none. It needs no provider and is deterministic.
type EchoGenerator struct{}

var _ Generator = EchoGenerator{}

// Generate returns the question line of prompt.
func (EchoGenerator) Generate(ctx context.Context, prompt string, _ *GenerateOptions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for _, line := range strings.Split(prompt, "\n") {
		if q, ok := strings.CutPrefix(line, "Question: "); ok {
			return q, nil
		}
	}
	return prompt, nil
}

// Name identifies the provider.
func (EchoGenerator) Name() string {
	return "echo"
}
