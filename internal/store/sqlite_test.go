package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

func newTestStore(t *testing.T) *SQLiteDocumentStore {
	t.Helper()
	s, err := OpenDocumentStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestUpsert_IsIdempotentByContent(t *testing.T) {
	// Given: a stored document
	ctx := context.Background()
	s := newTestStore(t)
	id1, created1, err := s.Upsert(ctx, &Document{Content: "Paris is the capital of France.", Source: "a.txt", Type: MediaTXT})
	require.NoError(t, err)

	// When: upserting the same content again
	id2, created2, err := s.Upsert(ctx, &Document{Content: "Paris is the capital of France.", Source: "b.txt", Type: MediaTXT})
	require.NoError(t, err)

	// Then: same id, no new row, metadata last-write-wins
	assert.True(t, created1)
	assert.False(t, created2)
	assert.Equal(t, id1, id2)
	assert.Equal(t, ContentHash("Paris is the capital of France."), id1)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	doc, err := s.Get(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, "b.txt", doc.Source)
}

func TestUpsert_DefaultsMediaTypeAndKeepsEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	id, _, err := s.Upsert(ctx, &Document{Content: "inline", Embedding: []float32{0.5, -1.25, 3}})
	require.NoError(t, err)
	_, _, err = s.Upsert(ctx, &Document{Content: "inline", Embedding: []float32{9, 9, 9}})
	require.NoError(t, err)

	doc, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, MediaText, doc.Type)
	assert.Equal(t, []float32{0.5, -1.25, 3}, doc.Embedding)
}

func TestUpsert_ConcurrentSameContent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, c, err := s.Upsert(ctx, &Document{Content: "shared"})
			assert.NoError(t, err)
			if c {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, created)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, rerrors.ErrNotFound))

	_, err = s.GetByHash(context.Background(), "never stored")
	assert.True(t, errors.Is(err, rerrors.ErrNotFound))
}

func TestGetByHash(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	id, _, err := s.Upsert(ctx, &Document{Content: "findable"})
	require.NoError(t, err)

	doc, err := s.GetByHash(ctx, "findable")

	require.NoError(t, err)
	assert.Equal(t, id, doc.ID)
}

func TestGetMany_PreservesOrderAndSkipsMissing(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	a, _, _ := s.Upsert(ctx, &Document{Content: "alpha"})
	b, _, _ := s.Upsert(ctx, &Document{Content: "beta"})
	c, _, _ := s.Upsert(ctx, &Document{Content: "gamma"})

	docs, err := s.GetMany(ctx, []string{c, "nope", a, b})

	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "gamma", docs[0].Content)
	assert.Equal(t, "alpha", docs[1].Content)
	assert.Equal(t, "beta", docs[2].Content)
}

func TestGetMany_LargeBatch(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	var ids []string
	for i := 0; i < getManyBatch+20; i++ {
		id, _, err := s.Upsert(ctx, &Document{Content: fmt.Sprintf("doc %d", i)})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	docs, err := s.GetMany(ctx, ids)

	require.NoError(t, err)
	assert.Len(t, docs, len(ids))
	assert.Equal(t, "doc 0", docs[0].Content)
}

func TestAll_InsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, c := range []string{"one", "two", "three"} {
		_, _, err := s.Upsert(ctx, &Document{Content: c})
		require.NoError(t, err)
	}

	var seen []string
	err := s.All(ctx, func(d *Document) error {
		seen = append(seen, d.Content)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, seen)
}

func TestAll_StopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	_, _, _ = s.Upsert(ctx, &Document{Content: "one"})
	_, _, _ = s.Upsert(ctx, &Document{Content: "two"})

	stop := errors.New("stop")
	calls := 0
	err := s.All(ctx, func(*Document) error {
		calls++
		return stop
	})

	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestOpenDocumentStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "documents.db")

	s, err := OpenDocumentStore(path)
	require.NoError(t, err)
	_, _, err = s.Upsert(ctx, &Document{Content: "durable"})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := OpenDocumentStore(path)
	require.NoError(t, err)
	defer reopened.Close()

	n, err := reopened.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDocumentStore_DriverErrorsAreRetryableStoreIO(t *testing.T) {
	// Given: a database that fails every query
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("FROM documents").WillReturnError(sql.ErrConnDone)

	s := newDocumentStore(db)

	// When: hydrating
	_, err = s.GetMany(context.Background(), []string{"x"})

	// Then: the failure is a retryable StoreIO error wrapping the cause
	require.Error(t, err)
	assert.True(t, errors.Is(err, rerrors.ErrStoreIO))
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.True(t, rerrors.IsRetryable(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDocumentStore_CountError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectQuery("SELECT COUNT").WillReturnError(errors.New("disk I/O error"))

	_, err = newDocumentStore(db).Count(context.Background())

	assert.True(t, errors.Is(err, rerrors.ErrStoreIO))
}
