package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	rerrors "github.com/Tije-csv/RAG-2.2/internal/errors"
)

// getManyBatch bounds the number of bound parameters per IN query.
const getManyBatch = 500

// SQLiteDocumentStore implements DocumentStore on SQLite. Upserts are
// keyed on the content hash with ON CONFLICT, so concurrent writers of
// the same content never create two rows.
type SQLiteDocumentStore struct {
	db *sql.DB
}

var _ DocumentStore = (*SQLiteDocumentStore)(nil)

// OpenDocumentStore opens (or creates) the store at path. ":memory:"
// opens a private in-memory database.
func OpenDocumentStore(path string) (*SQLiteDocumentStore, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and :memory:
	// databases are per-connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(documentsSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return newDocumentStore(db), nil
}

func newDocumentStore(db *sql.DB) *SQLiteDocumentStore {
	return &SQLiteDocumentStore{db: db}
}

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	seq        INTEGER PRIMARY KEY AUTOINCREMENT,
	id         TEXT NOT NULL UNIQUE,
	content    TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	media_type TEXT NOT NULL DEFAULT 'text',
	embedding  BLOB,
	created_at INTEGER NOT NULL
);
`

const selectColumns = `SELECT id, content, source, media_type, embedding, created_at FROM documents`

// Upsert inserts doc, or refreshes source and type when its content is
// already stored. The embedding of an existing row is only filled in when
// it was missing.
func (s *SQLiteDocumentStore) Upsert(ctx context.Context, doc *Document) (string, bool, error) {
	if doc == nil {
		return "", false, rerrors.ValidationError("document is nil", nil)
	}
	id := ContentHash(doc.Content)
	mediaType := doc.Type
	if mediaType == "" {
		mediaType = MediaText
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", false, storeIO("begin upsert", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, content, source, media_type, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		id, doc.Content, doc.Source, string(mediaType), encodeVector(doc.Embedding), time.Now().Unix())
	if err != nil {
		return "", false, storeIO("insert document", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return "", false, storeIO("insert document", err)
	}

	if inserted == 0 {
		_, err = tx.ExecContext(ctx,
			`UPDATE documents
			 SET source = ?, media_type = ?, embedding = COALESCE(embedding, ?)
			 WHERE id = ?`,
			doc.Source, string(mediaType), encodeVector(doc.Embedding), id)
		if err != nil {
			return "", false, storeIO("update document", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", false, storeIO("commit upsert", err)
	}
	return id, inserted > 0, nil
}

// Get returns the document with id.
func (s *SQLiteDocumentStore) Get(ctx context.Context, id string) (*Document, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, rerrors.NotFound(id)
	}
	if err != nil {
		return nil, storeIO("get document", err)
	}
	return doc, nil
}

// GetByHash returns the document whose content is content.
func (s *SQLiteDocumentStore) GetByHash(ctx context.Context, content string) (*Document, error) {
	return s.Get(ctx, ContentHash(content))
}

// GetMany hydrates ids in order, skipping absent ones.
func (s *SQLiteDocumentStore) GetMany(ctx context.Context, ids []string) ([]*Document, error) {
	if len(ids) == 0 {
		return []*Document{}, nil
	}

	found := make(map[string]*Document, len(ids))
	for start := 0; start < len(ids); start += getManyBatch {
		end := min(start+getManyBatch, len(ids))
		batch := ids[start:end]

		args := make([]any, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		query := selectColumns + ` WHERE id IN (?` + strings.Repeat(",?", len(batch)-1) + `)`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, storeIO("get documents", err)
		}
		for rows.Next() {
			doc, err := scanDocument(rows)
			if err != nil {
				_ = rows.Close()
				return nil, storeIO("scan document", err)
			}
			found[doc.ID] = doc
		}
		err = rows.Err()
		_ = rows.Close()
		if err != nil {
			return nil, storeIO("get documents", err)
		}
	}

	docs := make([]*Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := found[id]; ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// Count returns the number of documents.
func (s *SQLiteDocumentStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, storeIO("count documents", err)
	}
	return n, nil
}

// All visits documents in insertion order.
func (s *SQLiteDocumentStore) All(ctx context.Context, fn func(*Document) error) error {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY seq`)
	if err != nil {
		return storeIO("list documents", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return storeIO("scan document", err)
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return storeIO("list documents", err)
	}
	return nil
}

// DB exposes the connection so other local tables can share the file.
func (s *SQLiteDocumentStore) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *SQLiteDocumentStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(r rowScanner) (*Document, error) {
	var (
		doc       Document
		mediaType string
		blob      []byte
		created   int64
	)
	if err := r.Scan(&doc.ID, &doc.Content, &doc.Source, &mediaType, &blob, &created); err != nil {
		return nil, err
	}
	doc.Type = MediaType(mediaType)
	doc.Embedding = decodeVector(blob)
	doc.CreatedAt = time.Unix(created, 0)
	return &doc, nil
}

func storeIO(op string, err error) error {
	return rerrors.New(rerrors.ErrCodeStoreIO, op+": "+err.Error(), err)
}

// encodeVector packs v as little-endian float32s. Empty vectors are NULL.
func encodeVector(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}
