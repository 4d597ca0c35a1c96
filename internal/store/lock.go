package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// DataDirLock is an exclusive cross-process lock on a data directory.
type DataDirLock struct {
	flock *flock.Flock
}

// LockDataDir takes the lock at dir/.lock without blocking. A directory
// already held by another process yields ErrDataDirLocked.
func LockDataDir(dir string) (*DataDirLock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	fl := flock.New(filepath.Join(dir, ".lock"))
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !acquired {
		return nil, rerrors.New(rerrors.ErrCodeDataDirLocked,
			"data directory is in use by another process: "+dir, nil).
			WithSuggestion("Stop the other rag process or point store.data_dir elsewhere")
	}
	return &DataDirLock{flock: fl}, nil
}

// Path returns the lock file path.
func (l *DataDirLock) Path() string {
	return l.flock.Path()
}

// Unlock releases the lock. It is safe to call more than once.
func (l *DataDirLock) Unlock() error {
	if !l.flock.Locked() {
		return nil
	}
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
