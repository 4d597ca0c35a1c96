package store

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLength is the shortest token kept by Tokenize.
const MinTokenLength = 2

// englishStopWords are dropped from both documents and queries.
var englishStopWords = BuildStopWordMap([]string{
	"a", "an", "and", "are", "as", "at", "be", "been", "but", "by",
	"can", "did", "do", "does", "for", "from", "had", "has", "have",
	"he", "her", "his", "how", "if", "in", "into", "is", "it", "its",
	"of", "on", "or", "she", "so", "than", "that", "the", "their",
	"them", "then", "there", "these", "they", "this", "those", "to",
	"was", "we", "were", "what", "when", "where", "which", "who", "why",
	"will", "with", "would", "you", "your",
})

// Tokenize lowercases text and splits it into lexical terms. Runs of
// letters, digits and underscores are words; words are further split on
// snake_case and camelCase boundaries. Stop words and tokens shorter than
// MinTokenLength runes are removed.
func Tokenize(text string) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		for _, part := range SplitIdentifier(word) {
			lower := strings.ToLower(part)
			if utf8.RuneCountInString(lower) < MinTokenLength {
				continue
			}
			if _, stop := englishStopWords[lower]; stop {
				continue
			}
			tokens = append(tokens, lower)
		}
	}
	return tokens
}

// SplitIdentifier splits snake_case and camelCase identifiers. Plain words
// come back unchanged.
func SplitIdentifier(token string) []string {
	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, SplitCamelCase(part)...)
		}
	}
	return result
}

// SplitCamelCase splits camelCase and PascalCase, keeping acronyms whole:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "parseHTTPRequest" -> ["parse", "HTTP", "Request"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}

	var (
		result  []string
		current strings.Builder
	)
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevLower || nextLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// BuildStopWordMap converts a word list to a lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
