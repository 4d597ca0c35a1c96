// Package errors provides structured error handling for the RAG engine.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, cache, document store)
//   - 3XX: Network and provider errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, disk and storage I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network and external provider errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission   = "ERR_202_FILE_PERMISSION"
	ErrCodeCorruptIndex     = "ERR_205_CORRUPT_INDEX"
	ErrCodeFileCorrupt      = "ERR_206_FILE_CORRUPT"
	ErrCodeDocumentNotFound = "ERR_207_DOCUMENT_NOT_FOUND"
	ErrCodeCacheIO          = "ERR_208_CACHE_IO"
	ErrCodeStoreIO          = "ERR_209_STORE_IO"
	ErrCodeDataDirLocked    = "ERR_210_DATA_DIR_LOCKED"

	// Network and provider errors (300-399)
	ErrCodeNetworkTimeout      = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeNetworkUnavailable  = "ERR_302_NETWORK_UNAVAILABLE"
	ErrCodeProviderUnavailable = "ERR_304_PROVIDER_UNAVAILABLE"
	ErrCodeRateLimited         = "ERR_305_RATE_LIMITED"
	ErrCodeGenerationTimeout   = "ERR_306_GENERATION_TIMEOUT"

	// Validation errors (400-499)
	ErrCodeInvalidInput         = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch    = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty           = "ERR_404_QUERY_EMPTY"
	ErrCodeInvalidPath          = "ERR_406_INVALID_PATH"
	ErrCodeUnsupportedMediaType = "ERR_407_UNSUPPORTED_MEDIA_TYPE"
	ErrCodeInsufficientTraining = "ERR_408_INSUFFICIENT_TRAINING_DATA"

	// Internal errors (500-599)
	ErrCodeInternal         = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed  = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed     = "ERR_503_SEARCH_FAILED"
	ErrCodeIndexFailed      = "ERR_505_INDEX_FAILED"
	ErrCodeIndexNotTrained  = "ERR_506_INDEX_NOT_TRAINED"
	ErrCodeGenerationFailed = "ERR_507_GENERATION_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Numeric portion, e.g. "207" from "ERR_207_DOCUMENT_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex:
		return SeverityFatal
	case ErrCodeDocumentNotFound, ErrCodeIndexNotTrained:
		// Routinely probed or recovered internally
		return SeverityInfo
	case ErrCodeCacheIO, ErrCodeUnsupportedMediaType:
		return SeverityWarning
	}

	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeNetworkUnavailable,
		ErrCodeProviderUnavailable, ErrCodeRateLimited, ErrCodeStoreIO:
		return true
	default:
		return false
	}
}
