package logging

import (
	"log/slog"
)

// SetupMCPMode installs a file-only logger for the stdio MCP server.
// stdout carries JSON-RPC frames, so nothing may be written to the
// process streams once the transport is running.
func SetupMCPMode(level string) (func(), error) {
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.WriteToStderr = false

	cleanup, err := SetupDefault(cfg)
	if err != nil {
		return nil, err
	}

	slog.Info("mcp logging initialized",
		slog.String("log_file", cfg.FilePath),
		slog.String("level", cfg.Level))

	return cleanup, nil
}
