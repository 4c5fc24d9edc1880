// Package postgres implements lyceum.DocumentStore using PostgreSQL.
//
// Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nandika/lyceum"
)

// Store implements lyceum.DocumentStore backed by PostgreSQL.
// Use it when several engine processes share one document corpus;
// for single-process setups the sqlite store is simpler to operate.
type Store struct {
	pool *pgxpool.Pool
}

var _ lyceum.DocumentStore = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the documents table and indexes.
// Safe to call multiple times (all statements are idempotent).
func (s *Store) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS documents_created_idx ON documents(created_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}
	return nil
}

// CreateDocument inserts a new document. Inserting an ID that already
// exists is an error.
func (s *Store) CreateDocument(ctx context.Context, doc lyceum.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, title, content, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		doc.ID, doc.Title, doc.Content, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create document: %w", err)
	}
	return nil
}

// GetDocument returns a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (lyceum.Document, error) {
	var d lyceum.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, content, created_at, updated_at FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return lyceum.Document{}, fmt.Errorf("postgres: get document %s: %w", id, lyceum.ErrDocumentNotFound)
	}
	if err != nil {
		return lyceum.Document{}, fmt.Errorf("postgres: get document: %w", err)
	}
	return d, nil
}

// AppendDocument concatenates content onto an existing document and
// bumps its updated_at timestamp.
func (s *Store) AppendDocument(ctx context.Context, id, content string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET content = content || $1, updated_at = $2 WHERE id = $3`,
		content, lyceum.NowUnix(), id)
	if err != nil {
		return fmt.Errorf("postgres: append document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: append document %s: %w", id, lyceum.ErrDocumentNotFound)
	}
	return nil
}

// ListDocuments returns documents ordered by most recently created
// first. A non-positive limit returns all documents.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]lyceum.Document, error) {
	q := `SELECT id, title, content, created_at, updated_at
	 FROM documents
	 ORDER BY created_at DESC, id DESC`
	var rows pgx.Rows
	var err error
	if limit > 0 {
		rows, err = s.pool.Query(ctx, q+` LIMIT $1`, limit)
	} else {
		rows, err = s.pool.Query(ctx, q)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []lyceum.Document
	for rows.Next() {
		var d lyceum.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}
