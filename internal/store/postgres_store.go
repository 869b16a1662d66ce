package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists documents as JSONB rows.
type PostgresStore struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS documents (
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    version BIGINT NOT NULL,
    data JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL,
    seq BIGSERIAL,
    PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS documents_created ON documents (collection, created_at);
`

// NewPostgresStore connects to Postgres using the DSN and ensures the table exists.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) Create(ctx context.Context, collection string, data json.RawMessage) (Document, error) {
	return p.Insert(ctx, collection, uuid.NewString(), data)
}

func (p *PostgresStore) Insert(ctx context.Context, collection, id string, data json.RawMessage) (Document, error) {
	if err := checkID(id); err != nil {
		return Document{}, err
	}
	if err := checkJSON(data); err != nil {
		return Document{}, err
	}
	now := time.Now().UTC()
	row := p.pool.QueryRow(ctx, `
INSERT INTO documents (collection, id, version, data, created_at, updated_at)
VALUES ($1, $2, 1, $3, $4, $4)
ON CONFLICT (collection, id) DO NOTHING
RETURNING id, version, data, created_at, updated_at
`, collection, id, []byte(data), now)
	doc, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrAlreadyExists
	}
	return doc, err
}

func (p *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	row := p.pool.QueryRow(ctx, `
SELECT id, version, data, created_at, updated_at
FROM documents
WHERE collection = $1 AND id = $2
`, collection, id)
	doc, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	return doc, err
}

func (p *PostgresStore) Update(ctx context.Context, collection, id string, data json.RawMessage, expectedVersion int64) (Document, error) {
	if err := checkJSON(data); err != nil {
		return Document{}, err
	}
	row := p.pool.QueryRow(ctx, `
UPDATE documents
SET data = $3, version = version + 1, updated_at = $5
WHERE collection = $1 AND id = $2 AND version = $4
RETURNING id, version, data, created_at, updated_at
`, collection, id, []byte(data), expectedVersion, time.Now().UTC())
	doc, err := scanPostgres(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := p.Get(ctx, collection, id); getErr != nil {
			return Document{}, getErr
		}
		return Document{}, ErrVersionConflict
	}
	return doc, err
}

func (p *PostgresStore) Query(ctx context.Context, collection string, filters []Filter, order Order) ([]Document, error) {
	if err := checkFields(filters, order); err != nil {
		return nil, err
	}
	var (
		q    strings.Builder
		args = []any{collection}
	)
	q.WriteString(`SELECT id, version, data, created_at, updated_at FROM documents WHERE collection = $1`)
	for _, f := range filters {
		args = append(args, f.Field, f.Value)
		fmt.Fprintf(&q, ` AND data->>$%d = $%d`, len(args)-1, len(args))
	}
	dir := "ASC"
	if order.Desc {
		dir = "DESC"
	}
	if order.Field == "" {
		fmt.Fprintf(&q, ` ORDER BY created_at %s, seq %s`, dir, dir)
	} else {
		args = append(args, order.Field)
		fmt.Fprintf(&q, ` ORDER BY data->>$%d %s`, len(args), dir)
	}

	rows, err := p.pool.Query(ctx, q.String(), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanPostgres(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func scanPostgres(row pgx.Row) (Document, error) {
	var (
		doc  Document
		body []byte
	)
	if err := row.Scan(&doc.ID, &doc.Version, &body, &doc.CreatedAt, &doc.UpdatedAt); err != nil {
		return Document{}, err
	}
	doc.Data = json.RawMessage(body)
	return doc, nil
}
