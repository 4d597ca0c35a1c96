// Package cache stores query responses keyed by normalized query text.
// Entries carry a TTL; an expired entry reads as a miss. Backend errors
// are logged and reported as misses, never as failures.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// DefaultTTL is the lifetime of an entry when none is given.
const DefaultTTL = time.Hour

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// Cache maps queries to values. Implementations are safe for concurrent
// use; writes to the same key are last-write-wins.
type Cache[V any] interface {
	// Get returns a copy of the live value for query.
	Get(ctx context.Context, query string) (*V, bool)

	// Put stores v for query. A non-positive ttl selects DefaultTTL.
	Put(ctx context.Context, query string, v *V, ttl time.Duration)

	// Len counts live entries.
	Len(ctx context.Context) int

	// Invalidate drops every entry.
	Invalidate(ctx context.Context)

	Close() error
}

// NormalizeQuery lowercases q, trims it and collapses inner whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

// Key returns the storage key for q: hex SHA-256 of the normalized query.
func Key(q string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(q)))
	return hex.EncodeToString(sum[:])
}

// Cloner is implemented by values holding slices or maps. The memory
// backend clones them on Put and Get so callers never share storage with
// the cache.
type Cloner[V any] interface {
	Clone() V
}

// clone deep-copies v when it implements Cloner and shallow-copies it
// otherwise.
func clone[V any](v V) V {
	if c, ok := any(v).(Cloner[V]); ok {
		return c.Clone()
	}
	return v
}

// envelope is a stored value with its expiry.
type envelope[V any] struct {
	Value     V         `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (e envelope[V]) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Options configures New.
type Options struct {
	Backend string

	// MaxEntries bounds the memory backend.
	MaxEntries int

	// Dir holds badger files. Empty with the badger backend runs in memory.
	Dir string

	Logger *slog.Logger
}

// New creates the cache backend named by opts.Backend.
func New[V any](opts Options) (Cache[V], error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryCache[V](opts.MaxEntries), nil
	case BackendBadger:
		c, err := OpenBadgerCache[V](opts.Dir, opts.Logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, rerrors.ConfigError(fmt.Sprintf("unknown cache backend %q", opts.Backend), nil).
		WithSuggestion("Use one of: memory, badger")
}
