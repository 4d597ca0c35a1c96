// Package logging configures slog for the rag binary.
//
// Logs are JSON lines written to a size-rotated file under ~/.rag/logs/,
// optionally mirrored to stderr. In MCP mode stderr is never used because
// the stdio transport owns the process streams.
package logging
