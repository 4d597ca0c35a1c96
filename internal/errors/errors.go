package errors

import (
	stderrors "errors"
	"fmt"
	"strconv"
)

// RAGError is the structured error type for the RAG engine.
// It provides rich context for error handling, logging, and user presentation.
type RAGError struct {
	// Code is the unique error code (e.g., "ERR_207_DOCUMENT_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool

	// Suggestion is an actionable suggestion for the user.
	Suggestion string
}

// Sentinels for errors.Is matching. Matching is by code only, so any
// RAGError carrying the same code satisfies errors.Is(err, ErrNotFound).
var (
	ErrDimensionMismatch    = &RAGError{Code: ErrCodeDimensionMismatch}
	ErrIndexNotTrained      = &RAGError{Code: ErrCodeIndexNotTrained}
	ErrInsufficientTraining = &RAGError{Code: ErrCodeInsufficientTraining}
	ErrNotFound             = &RAGError{Code: ErrCodeDocumentNotFound}
	ErrProviderUnavailable  = &RAGError{Code: ErrCodeProviderUnavailable}
	ErrRateLimited          = &RAGError{Code: ErrCodeRateLimited}
	ErrGenerationTimeout    = &RAGError{Code: ErrCodeGenerationTimeout}
	ErrUnsupportedMediaType = &RAGError{Code: ErrCodeUnsupportedMediaType}
	ErrCacheIO              = &RAGError{Code: ErrCodeCacheIO}
	ErrStoreIO              = &RAGError{Code: ErrCodeStoreIO}
	ErrQueryEmpty           = &RAGError{Code: ErrCodeQueryEmpty}
	ErrDataDirLocked        = &RAGError{Code: ErrCodeDataDirLocked}
)

// Error implements the error interface.
func (e *RAGError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *RAGError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with RAGError.
func (e *RAGError) Is(target error) bool {
	if t, ok := target.(*RAGError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *RAGError) WithDetail(key, value string) *RAGError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// WithSuggestion adds an actionable suggestion for the user.
// Returns the error for method chaining.
func (e *RAGError) WithSuggestion(suggestion string) *RAGError {
	e.Suggestion = suggestion
	return e
}

// New creates a new RAGError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *RAGError {
	return &RAGError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a RAGError from an existing error.
// The error's message becomes the RAGError message.
func Wrap(code string, err error) *RAGError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// DimensionMismatch reports a vector whose length differs from the index dimensionality.
func DimensionMismatch(expected, got int) *RAGError {
	return New(ErrCodeDimensionMismatch,
		fmt.Sprintf("dimension mismatch: expected %d, got %d", expected, got), nil).
		WithDetail("expected", strconv.Itoa(expected)).
		WithDetail("got", strconv.Itoa(got))
}

// NotFound reports a document id absent from the store.
func NotFound(id string) *RAGError {
	return New(ErrCodeDocumentNotFound, "document not found: "+id, nil).
		WithDetail("id", id)
}

// UnsupportedMediaType reports a file the loader has no extractor for.
func UnsupportedMediaType(path, ext string) *RAGError {
	return New(ErrCodeUnsupportedMediaType,
		fmt.Sprintf("unsupported media type %q: %s", ext, path), nil).
		WithDetail("path", path).
		WithDetail("extension", ext)
}

// ConfigError creates a configuration-related error.
func ConfigError(message string, cause error) *RAGError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// ValidationError creates a validation-related error.
func ValidationError(message string, cause error) *RAGError {
	return New(ErrCodeInvalidInput, message, cause)
}

// InternalError creates an internal error.
func InternalError(message string, cause error) *RAGError {
	return New(ErrCodeInternal, message, cause)
}

// IsRetryable checks if any RAGError in the chain is retryable.
func IsRetryable(err error) bool {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from the first RAGError in the chain.
// Returns empty string if there is none.
func GetCode(err error) string {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Code
	}
	return ""
}

// GetCategory extracts the category from the first RAGError in the chain.
func GetCategory(err error) Category {
	var re *RAGError
	if stderrors.As(err, &re) {
		return re.Category
	}
	return ""
}
