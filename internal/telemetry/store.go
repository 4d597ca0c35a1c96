package telemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MaxStoredMisses bounds the persisted zero-result queries.
const MaxStoredMisses = 100

// Batch is one flush worth of increments.
type Batch struct {
	// Date is the UTC day the increments belong to, YYYY-MM-DD.
	Date    string
	Paths   map[string]int64
	Latency map[LatencyBucket]int64
	Terms   map[string]int64
	Misses  []ZeroResult
}

// Summary aggregates persisted telemetry.
type Summary struct {
	Days         int                     `json:"days"`
	Total        int64                   `json:"total"`
	Paths        map[string]int64        `json:"paths"`
	Latency      map[LatencyBucket]int64 `json:"latency"`
	TopTerms     []TermCount             `json:"top_terms"`
	RecentMisses []ZeroResult            `json:"recent_misses"`
}

// Store persists telemetry.
type Store interface {
	Add(ctx context.Context, b Batch) error
	// Summary covers the last days days and returns up to limit terms
	// and misses.
	Summary(ctx context.Context, days, limit int) (*Summary, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS query_path_daily (
	date  TEXT NOT NULL,
	path  TEXT NOT NULL,
	count INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, path)
);
CREATE TABLE IF NOT EXISTS query_latency_daily (
	date   TEXT NOT NULL,
	bucket TEXT NOT NULL,
	count  INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (date, bucket)
);
CREATE TABLE IF NOT EXISTS query_terms (
	term      TEXT PRIMARY KEY,
	count     INTEGER NOT NULL DEFAULT 0,
	last_seen INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_query_terms_count ON query_terms(count DESC);
CREATE TABLE IF NOT EXISTS query_misses (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	query TEXT NOT NULL,
	at    INTEGER NOT NULL
);
`

// SQLiteStore keeps telemetry in SQLite tables next to the documents.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates the telemetry tables in db if needed.
func NewSQLiteStore(ctx context.Context, db *sql.DB) (*SQLiteStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create telemetry schema: %w", err)
	}
	return newSQLiteStore(db), nil
}

func newSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Add applies b in one transaction.
func (s *SQLiteStore) Add(ctx context.Context, b Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for path, n := range b.Paths {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_path_daily (date, path, count) VALUES (?, ?, ?)
			ON CONFLICT(date, path) DO UPDATE SET count = count + excluded.count`,
			b.Date, path, n); err != nil {
			return fmt.Errorf("add path count: %w", err)
		}
	}
	for bucket, n := range b.Latency {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_latency_daily (date, bucket, count) VALUES (?, ?, ?)
			ON CONFLICT(date, bucket) DO UPDATE SET count = count + excluded.count`,
			b.Date, string(bucket), n); err != nil {
			return fmt.Errorf("add latency count: %w", err)
		}
	}
	now := time.Now().Unix()
	for term, n := range b.Terms {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO query_terms (term, count, last_seen) VALUES (?, ?, ?)
			ON CONFLICT(term) DO UPDATE SET count = count + excluded.count, last_seen = excluded.last_seen`,
			term, n, now); err != nil {
			return fmt.Errorf("add term count: %w", err)
		}
	}
	if len(b.Misses) > 0 {
		for _, m := range b.Misses {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO query_misses (query, at) VALUES (?, ?)`,
				m.Query, m.Time.UnixNano()); err != nil {
				return fmt.Errorf("add zero-result query: %w", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM query_misses WHERE id NOT IN (
				SELECT id FROM query_misses ORDER BY id DESC LIMIT ?
			)`, MaxStoredMisses); err != nil {
			return fmt.Errorf("trim zero-result queries: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Summary aggregates the last days days, today included.
func (s *SQLiteStore) Summary(ctx context.Context, days, limit int) (*Summary, error) {
	if days <= 0 {
		days = 30
	}
	if limit <= 0 {
		limit = 10
	}
	from := time.Now().UTC().AddDate(0, 0, -(days - 1)).Format(time.DateOnly)

	sum := &Summary{
		Days:    days,
		Paths:   make(map[string]int64),
		Latency: make(map[LatencyBucket]int64),
	}

	err := s.eachRow(ctx, func(rows *sql.Rows) error {
		var path string
		var n int64
		if err := rows.Scan(&path, &n); err != nil {
			return err
		}
		sum.Paths[path] = n
		sum.Total += n
		return nil
	}, `SELECT path, SUM(count) FROM query_path_daily WHERE date >= ? GROUP BY path`, from)
	if err != nil {
		return nil, fmt.Errorf("path counts: %w", err)
	}

	err = s.eachRow(ctx, func(rows *sql.Rows) error {
		var bucket string
		var n int64
		if err := rows.Scan(&bucket, &n); err != nil {
			return err
		}
		sum.Latency[LatencyBucket(bucket)] = n
		return nil
	}, `SELECT bucket, SUM(count) FROM query_latency_daily WHERE date >= ? GROUP BY bucket`, from)
	if err != nil {
		return nil, fmt.Errorf("latency counts: %w", err)
	}

	err = s.eachRow(ctx, func(rows *sql.Rows) error {
		var tc TermCount
		if err := rows.Scan(&tc.Term, &tc.Count); err != nil {
			return err
		}
		sum.TopTerms = append(sum.TopTerms, tc)
		return nil
	}, `SELECT term, count FROM query_terms ORDER BY count DESC, term ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("top terms: %w", err)
	}

	err = s.eachRow(ctx, func(rows *sql.Rows) error {
		var m ZeroResult
		var at int64
		if err := rows.Scan(&m.Query, &at); err != nil {
			return err
		}
		m.Time = time.Unix(0, at)
		sum.RecentMisses = append(sum.RecentMisses, m)
		return nil
	}, `SELECT query, at FROM query_misses ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("zero-result queries: %w", err)
	}

	return sum, nil
}

func (s *SQLiteStore) eachRow(ctx context.Context, fn func(*sql.Rows) error, query string, args ...any) error {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}
