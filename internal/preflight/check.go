// Package preflight checks that a project can run: enough disk and file
// descriptors, a usable data directory and reachable model providers.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/Tije-csv/RAG-2.2/internal/config"
	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/store"
)

// DefaultProbeTimeout bounds each provider probe.
const DefaultProbeTimeout = 5 * time.Second

// CheckStatus is the outcome of one check.
type CheckStatus int

const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

func (s CheckStatus) String() string {
	switch s {
	case StatusPass:
		return "PASS"
	case StatusWarn:
		return "WARN"
	case StatusFail:
		return "FAIL"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON reports.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult holds the result of a single check.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports whether a required check failed.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// Checker runs checks for one project.
type Checker struct {
	cfg     *config.Config
	root    string
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithProbeTimeout bounds each provider probe.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Checker) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger handed to providers.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a Checker for the project at root configured by cfg.
func New(cfg *config.Config, root string, opts ...Option) *Checker {
	c := &Checker{cfg: cfg, root: root, timeout: DefaultProbeTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RunAll runs every check in a fixed order.
func (c *Checker) RunAll(ctx context.Context) []CheckResult {
	dataDir := c.cfg.DataPath(c.root)
	return []CheckResult{
		c.CheckDataDir(dataDir),
		c.CheckDiskSpace(existingParent(dataDir)),
		c.CheckFileDescriptors(),
		c.CheckEmbedder(ctx),
		c.CheckGenerator(ctx),
	}
}

// HasCriticalFailures reports whether any required check failed.
func HasCriticalFailures(results []CheckResult) bool {
	for _, r := range results {
		if r.IsCritical() {
			return true
		}
	}
	return false
}

// SummaryStatus condenses results to "ready", "ready_with_warnings" or
// "failed".
func SummaryStatus(results []CheckResult) string {
	warned := false
	for _, r := range results {
		if r.IsCritical() {
			return "failed"
		}
		if r.Status != StatusPass {
			warned = true
		}
	}
	if warned {
		return "ready_with_warnings"
	}
	return "ready"
}

// CheckDataDir creates the data directory if needed, takes its lock and
// writes a probe file. A lock held by a running server is a warning.
func (c *Checker) CheckDataDir(dir string) CheckResult {
	result := CheckResult{Name: "data_dir", Required: true}

	lock, err := store.LockDataDir(dir)
	if err != nil {
		if errors.Is(err, rerrors.ErrDataDirLocked) {
			result.Status = StatusWarn
			result.Message = "in use by another rag process"
			result.Details = dir
			return result
		}
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	defer func() { _ = lock.Unlock() }()

	probe := filepath.Join(dir, ".preflight")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("not writable: %v", err)
		return result
	}
	_ = os.Remove(probe)

	result.Status = StatusPass
	result.Message = dir
	return result
}

// existingParent returns the nearest existing ancestor of path.
func existingParent(path string) string {
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}
