package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

var keyPrefix = []byte("q:")

// badgerLogger adapts slog.Logger to badger.Logger. Badger's info chatter
// is demoted to debug.
type badgerLogger struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLogger)(nil)

func (l *badgerLogger) Errorf(msg string, items ...any) {
	l.logger.Error(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Warningf(msg string, items ...any) {
	l.logger.Warn(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Infof(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

func (l *badgerLogger) Debugf(msg string, items ...any) {
	l.logger.Debug(fmt.Sprintf(msg, items...))
}

// BadgerCache persists entries in BadgerDB. Badger sweeps expired keys on
// its own; reads also check the stored expiry.
type BadgerCache[V any] struct {
	db     *badger.DB
	logger *slog.Logger
	now    func() time.Time
}

var _ Cache[struct{}] = (*BadgerCache[struct{}])(nil)

// OpenBadgerCache opens or creates a cache under dir. An empty dir keeps
// everything in memory.
func OpenBadgerCache[V any](dir string, logger *slog.Logger) (*BadgerCache[V], error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, rerrors.New(rerrors.ErrCodeCacheIO, "failed to create cache directory", err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = &badgerLogger{logger: logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, rerrors.New(rerrors.ErrCodeCacheIO, "failed to open badger cache", err).
			WithDetail("dir", dir)
	}
	return &BadgerCache[V]{db: db, logger: logger, now: time.Now}, nil
}

func badgerKey(query string) []byte {
	return append(append([]byte{}, keyPrefix...), Key(query)...)
}

// Get returns the live value for query. Read and decode failures are
// logged as cache I/O errors and reported as a miss.
func (b *BadgerCache[V]) Get(_ context.Context, query string) (*V, bool) {
	var e envelope[V]
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(query))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &e)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false
	}
	if err != nil {
		b.logIOError("get", err)
		return nil, false
	}
	if e.expired(b.now()) {
		return nil, false
	}
	return &e.Value, true
}

// Put stores v with a badger TTL rounded up to whole seconds.
func (b *BadgerCache[V]) Put(_ context.Context, query string, v *V, ttl time.Duration) {
	if v == nil {
		return
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	data, err := json.Marshal(envelope[V]{Value: *v, ExpiresAt: b.now().Add(ttl)})
	if err != nil {
		b.logIOError("encode", err)
		return
	}

	badgerTTL := ttl.Truncate(time.Second) + time.Second
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(badgerKey(query), data).WithTTL(badgerTTL))
	})
	if err != nil {
		b.logIOError("put", err)
	}
}

// Len counts live entries.
func (b *BadgerCache[V]) Len(_ context.Context) int {
	n := 0
	now := b.now()
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var e envelope[V]
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			})
			if err == nil && !e.expired(now) {
				n++
			}
		}
		return nil
	})
	if err != nil {
		b.logIOError("len", err)
	}
	return n
}

// Invalidate drops every cached query.
func (b *BadgerCache[V]) Invalidate(context.Context) {
	if err := b.db.DropPrefix(keyPrefix); err != nil {
		b.logIOError("invalidate", err)
	}
}

// Close closes the database.
func (b *BadgerCache[V]) Close() error {
	return b.db.Close()
}

func (b *BadgerCache[V]) logIOError(op string, err error) {
	ioErr := rerrors.New(rerrors.ErrCodeCacheIO, "cache "+op+" failed", err)
	attrs := append([]any{slog.String("op", op)}, rerrors.LogAttrs(ioErr)...)
	b.logger.Warn("cache io error, treating as miss", attrs...)
}
