package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tije-csv/RAG-2.2/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	docs, err := store.OpenDocumentStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = docs.Close() })

	s, err := NewSQLiteStore(context.Background(), docs.DB())
	require.NoError(t, err)
	return s
}

func today() string {
	return time.Now().UTC().Format(time.DateOnly)
}

func TestSQLiteStore_AddAccumulates(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Given: two batches for today
	require.NoError(t, s.Add(ctx, Batch{
		Date:    today(),
		Paths:   map[string]int64{"rag": 2, "direct": 1},
		Latency: map[LatencyBucket]int64{BucketUnder100ms: 3},
		Terms:   map[string]int64{"capital": 2, "france": 1},
	}))
	require.NoError(t, s.Add(ctx, Batch{
		Date:    today(),
		Paths:   map[string]int64{"rag": 1},
		Latency: map[LatencyBucket]int64{BucketUnder1s: 1},
		Terms:   map[string]int64{"france": 2},
		Misses:  []ZeroResult{{Query: "unknown zebra", Time: time.Now()}},
	}))

	// When: summarizing the last week
	sum, err := s.Summary(ctx, 7, 10)

	// Then: counts are summed across batches
	require.NoError(t, err)
	assert.Equal(t, int64(4), sum.Total)
	assert.Equal(t, int64(3), sum.Paths["rag"])
	assert.Equal(t, int64(1), sum.Paths["direct"])
	assert.Equal(t, int64(3), sum.Latency[BucketUnder100ms])
	assert.Equal(t, int64(1), sum.Latency[BucketUnder1s])
	assert.Equal(t, []TermCount{{Term: "france", Count: 3}, {Term: "capital", Count: 2}}, sum.TopTerms)
	require.Len(t, sum.RecentMisses, 1)
	assert.Equal(t, "unknown zebra", sum.RecentMisses[0].Query)
}

func TestSQLiteStore_SummaryWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Add(ctx, Batch{Date: "2000-01-01", Paths: map[string]int64{"rag": 5}}))
	require.NoError(t, s.Add(ctx, Batch{Date: today(), Paths: map[string]int64{"rag": 1}}))

	sum, err := s.Summary(ctx, 1, 10)

	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.Total)
	assert.Equal(t, 1, sum.Days)
}

func TestSQLiteStore_MissesAreTrimmed(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	misses := make([]ZeroResult, MaxStoredMisses+5)
	for i := range misses {
		misses[i] = ZeroResult{Query: fmt.Sprintf("miss %d", i), Time: time.Now()}
	}
	require.NoError(t, s.Add(ctx, Batch{Date: today(), Misses: misses}))

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM query_misses`).Scan(&n))
	assert.Equal(t, MaxStoredMisses, n)

	sum, err := s.Summary(ctx, 1, 3)
	require.NoError(t, err)
	require.Len(t, sum.RecentMisses, 3)
	assert.Equal(t, fmt.Sprintf("miss %d", MaxStoredMisses+4), sum.RecentMisses[0].Query)
}

func TestSQLiteStore_EmptySummary(t *testing.T) {
	sum, err := newTestStore(t).Summary(context.Background(), 0, 0)

	require.NoError(t, err)
	assert.Equal(t, 30, sum.Days)
	assert.Equal(t, int64(0), sum.Total)
	assert.Empty(t, sum.TopTerms)
}

func TestSQLiteStore_AddFailureRollsBack(t *testing.T) {
	// Given: a database that rejects the first insert
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO query_path_daily").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	// When: adding a batch
	err = newSQLiteStore(db).Add(context.Background(), Batch{Date: today(), Paths: map[string]int64{"rag": 1}})

	// Then: the error surfaces and the transaction is rolled back
	require.ErrorIs(t, err, sql.ErrConnDone)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNewSQLiteStore_RequiresDB(t *testing.T) {
	_, err := NewSQLiteStore(context.Background(), nil)
	assert.Error(t, err)
}
