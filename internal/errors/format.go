package errors

import (
	stderrors "errors"
	"log/slog"
	"sort"
	"strings"
)

func asRAGError(err error) (*RAGError, bool) {
	var re *RAGError
	ok := stderrors.As(err, &re)
	return re, ok
}

// FormatForUser renders err for a terminal: message, suggestion and code.
// debug adds the details and the underlying cause.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}
	re, ok := asRAGError(err)
	if !ok {
		return err.Error()
	}

	var sb strings.Builder
	sb.WriteString("Error: " + re.Message + "\n")
	if re.Suggestion != "" {
		sb.WriteString("\nSuggestion: " + re.Suggestion + "\n")
	}
	if debug {
		for _, k := range sortedKeys(re.Details) {
			sb.WriteString("  " + k + ": " + re.Details[k] + "\n")
		}
		if re.Cause != nil {
			sb.WriteString("\nCause: " + re.Cause.Error() + "\n")
		}
	}
	sb.WriteString("\n[" + re.Code + "]")
	return sb.String()
}

// LogAttrs returns slog attributes describing err, ready to pass to a
// logger call. Details are flattened under a "detail_" prefix.
func LogAttrs(err error) []any {
	if err == nil {
		return nil
	}
	re, ok := asRAGError(err)
	if !ok {
		return []any{slog.String("error", err.Error())}
	}

	attrs := []any{
		slog.String("error_code", re.Code),
		slog.String("error", re.Message),
		slog.String("category", string(re.Category)),
		slog.Bool("retryable", re.Retryable),
	}
	if re.Cause != nil {
		attrs = append(attrs, slog.String("cause", re.Cause.Error()))
	}
	for _, k := range sortedKeys(re.Details) {
		attrs = append(attrs, slog.String("detail_"+k, re.Details[k]))
	}
	return attrs
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
