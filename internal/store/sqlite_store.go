package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists documents in an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    version INTEGER NOT NULL,
    data TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_created ON documents (collection, created_at);
`

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// A single connection serializes writers, which SQLite requires anyway.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, collection string, data json.RawMessage) (Document, error) {
	return s.Insert(ctx, collection, uuid.NewString(), data)
}

func (s *SQLiteStore) Insert(ctx context.Context, collection, id string, data json.RawMessage) (Document, error) {
	if err := checkID(id); err != nil {
		return Document{}, err
	}
	if err := checkJSON(data); err != nil {
		return Document{}, err
	}
	now := time.Now().UTC()
	doc := Document{ID: id, Version: 1, Data: cloneRaw(data), CreatedAt: now, UpdatedAt: now}
	res, err := s.db.ExecContext(ctx, `
INSERT INTO documents (collection, id, version, data, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (collection, id) DO NOTHING
`, collection, doc.ID, doc.Version, string(doc.Data), doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Document{}, err
	}
	if n == 0 {
		return Document{}, ErrAlreadyExists
	}
	return doc, nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, version, data, created_at, updated_at
FROM documents
WHERE collection = ? AND id = ?
`, collection, id)
	doc, err := scanSQLite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

func (s *SQLiteStore) Update(ctx context.Context, collection, id string, data json.RawMessage, expectedVersion int64) (Document, error) {
	if err := checkJSON(data); err != nil {
		return Document{}, err
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE documents
SET data = ?, version = version + 1, updated_at = ?
WHERE collection = ? AND id = ? AND version = ?
`, string(data), time.Now().UTC(), collection, id, expectedVersion)
	if err != nil {
		return Document{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Document{}, err
	}
	if n == 0 {
		if _, err := s.Get(ctx, collection, id); err != nil {
			return Document{}, err
		}
		return Document{}, ErrVersionConflict
	}
	return s.Get(ctx, collection, id)
}

func (s *SQLiteStore) Query(ctx context.Context, collection string, filters []Filter, order Order) ([]Document, error) {
	if err := checkFields(filters, order); err != nil {
		return nil, err
	}
	var (
		q    strings.Builder
		args = []any{collection}
	)
	q.WriteString(`SELECT id, version, data, created_at, updated_at FROM documents WHERE collection = ?`)
	for _, f := range filters {
		q.WriteString(` AND CAST(json_extract(data, ?) AS TEXT) = ?`)
		args = append(args, "$."+f.Field, f.Value)
	}
	dir := "ASC"
	if order.Desc {
		dir = "DESC"
	}
	if order.Field == "" {
		fmt.Fprintf(&q, ` ORDER BY created_at %s, rowid %s`, dir, dir)
	} else {
		fmt.Fprintf(&q, ` ORDER BY CAST(json_extract(data, ?) AS TEXT) %s`, dir)
		args = append(args, "$."+order.Field)
	}

	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanSQLite(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLite(row rowScanner) (Document, error) {
	var (
		doc  Document
		body string
	)
	if err := row.Scan(&doc.ID, &doc.Version, &body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Data = json.RawMessage(body)
	return doc, nil
}
