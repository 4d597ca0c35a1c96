package cache

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
	"github.com/Tije-csv/RAG-2.2/internal/logging"
)

type answer struct {
	Text string   `json:"text"`
	Docs []string `json:"docs"`
}

func (a answer) Clone() answer {
	a.Docs = slices.Clone(a.Docs)
	return a
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

// backends returns each cache implementation driven by clock.
func backends(t *testing.T, clock *fakeClock) map[string]Cache[answer] {
	t.Helper()

	mem := NewMemoryCache[answer](16)
	mem.now = clock.Now

	bdg, err := OpenBadgerCache[answer]("", logging.Nop())
	require.NoError(t, err)
	bdg.now = clock.Now
	t.Cleanup(func() { _ = bdg.Close() })

	return map[string]Cache[answer]{"memory": mem, "badger": bdg}
}

func TestNormalizeQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"What is RAG?", "what is rag?"},
		{"  what   is\tRAG?\n", "what is rag?"},
		{"", ""},
		{"   ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeQuery(tt.in))
		})
	}
}

func TestKey_EquivalentQueriesShareKey(t *testing.T) {
	assert.Equal(t, Key("What is RAG?"), Key("  what  is rag?  "))
	assert.NotEqual(t, Key("what is rag?"), Key("what is a rag?"))
	assert.Len(t, Key("x"), 64)
}

func TestCache_TTL_HitThenMissAfterExpiry(t *testing.T) {
	ctx := context.Background()
	clock := newClock()

	for name, c := range backends(t, clock) {
		t.Run(name, func(t *testing.T) {
			// Given: an entry stored with a 1s TTL
			c.Put(ctx, "ttl query "+name, &answer{Text: "42"}, time.Second)

			// When: read immediately
			got, ok := c.Get(ctx, "TTL  query "+name)

			// Then: it is a hit under the normalized key
			require.True(t, ok)
			assert.Equal(t, "42", got.Text)

			// When: the TTL elapses
			clock.Advance(1100 * time.Millisecond)

			// Then: the entry reads as a miss and is not counted
			_, ok = c.Get(ctx, "ttl query "+name)
			assert.False(t, ok)
			assert.Equal(t, 0, c.Len(ctx))
		})
	}
}

func TestCache_LastWriteWins(t *testing.T) {
	ctx := context.Background()

	for name, c := range backends(t, newClock()) {
		t.Run(name, func(t *testing.T) {
			c.Put(ctx, "q", &answer{Text: "first"}, 0)
			c.Put(ctx, "Q", &answer{Text: "second", Docs: []string{"a"}}, 0)

			got, ok := c.Get(ctx, "q")
			require.True(t, ok)
			assert.Equal(t, "second", got.Text)
			assert.Equal(t, []string{"a"}, got.Docs)
			assert.Equal(t, 1, c.Len(ctx))
		})
	}
}

func TestCache_Invalidate_DropsEverything(t *testing.T) {
	ctx := context.Background()

	for name, c := range backends(t, newClock()) {
		t.Run(name, func(t *testing.T) {
			// Given: two cached answers
			c.Put(ctx, "one", &answer{Text: "1"}, time.Hour)
			c.Put(ctx, "two", &answer{Text: "2"}, time.Hour)
			require.Equal(t, 2, c.Len(ctx))

			// When: invalidating
			c.Invalidate(ctx)

			// Then: both are gone
			_, ok := c.Get(ctx, "one")
			assert.False(t, ok)
			assert.Equal(t, 0, c.Len(ctx))
		})
	}
}

func TestMemoryCache_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[answer](4)
	c.Put(ctx, "q", &answer{Text: "original"}, 0)

	got, ok := c.Get(ctx, "q")
	require.True(t, ok)
	got.Text = "mutated"

	again, ok := c.Get(ctx, "q")
	require.True(t, ok)
	assert.Equal(t, "original", again.Text)
}

func TestMemoryCache_DeepCopiesCloners(t *testing.T) {
	// Given: a cached value holding a slice
	ctx := context.Background()
	c := NewMemoryCache[answer](4)
	put := &answer{Text: "a", Docs: []string{"doc-1", "doc-2"}}
	c.Put(ctx, "q", put, 0)

	// When: both the stored original and a read copy are mutated in place
	put.Docs[0] = "changed-by-writer"
	got, ok := c.Get(ctx, "q")
	require.True(t, ok)
	got.Docs[1] = "changed-by-reader"

	// Then: later reads still see the original slice
	again, ok := c.Get(ctx, "q")
	require.True(t, ok)
	assert.Equal(t, []string{"doc-1", "doc-2"}, again.Docs)
}

func TestMemoryCache_EvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache[answer](2)

	c.Put(ctx, "a", &answer{Text: "a"}, 0)
	c.Put(ctx, "b", &answer{Text: "b"}, 0)
	_, _ = c.Get(ctx, "a")
	c.Put(ctx, "c", &answer{Text: "c"}, 0)

	_, okA := c.Get(ctx, "a")
	_, okB := c.Get(ctx, "b")
	assert.True(t, okA)
	assert.False(t, okB)
}

func TestCache_PutNilIsIgnored(t *testing.T) {
	ctx := context.Background()
	for name, c := range backends(t, newClock()) {
		t.Run(name, func(t *testing.T) {
			c.Put(ctx, "nil", nil, time.Minute)
			assert.Equal(t, 0, c.Len(ctx))
		})
	}
}

func TestBadgerCache_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Given: an answer written to an on-disk cache
	c, err := OpenBadgerCache[answer](dir, logging.Nop())
	require.NoError(t, err)
	c.Put(ctx, "durable", &answer{Text: "kept"}, time.Hour)
	require.NoError(t, c.Close())

	// When: reopening the same directory
	c, err = OpenBadgerCache[answer](dir, logging.Nop())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	// Then: the answer is still there
	got, ok := c.Get(ctx, "durable")
	require.True(t, ok)
	assert.Equal(t, "kept", got.Text)
}

func TestBadgerCache_CorruptValueIsMiss(t *testing.T) {
	ctx := context.Background()
	c, err := OpenBadgerCache[answer]("", logging.Nop())
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	// Given: a value that is not a valid envelope
	require.NoError(t, c.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey("broken"), []byte("{not json"))
	}))

	// Then: reading it is a miss, not a failure
	_, ok := c.Get(ctx, "broken")
	assert.False(t, ok)
}

func TestNew_Backends(t *testing.T) {
	mem, err := New[answer](Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryCache[answer]{}, mem)

	bdg, err := New[answer](Options{Backend: BackendBadger, Logger: logging.Nop()})
	require.NoError(t, err)
	assert.IsType(t, &BadgerCache[answer]{}, bdg)
	require.NoError(t, bdg.Close())

	_, err = New[answer](Options{Backend: "redis"})
	assert.Equal(t, rerrors.ErrCodeConfigInvalid, rerrors.GetCode(err))
}
