package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.rag/logs, or a temp-dir fallback when the home
// directory cannot be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".rag", "logs")
	}
	return filepath.Join(home, ".rag", "logs")
}

// DefaultLogPath returns the server log path inside DefaultLogDir.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
