// Package sqlite implements lyceum.DocumentStore backed by a local SQLite
// file. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nandika/lyceum"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements lyceum.DocumentStore backed by a local SQLite file.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ lyceum.DocumentStore = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates the documents table.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")

	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}

	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// CreateDocument inserts a new document.
func (s *Store) CreateDocument(ctx context.Context, doc lyceum.Document) error {
	start := time.Now()
	s.logger.Debug("sqlite: create document", "id", doc.ID, "title", doc.Title)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, content, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.ID, doc.Title, doc.Content, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: create document failed", "id", doc.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("create document: %w", err)
	}
	s.logger.Debug("sqlite: create document ok", "id", doc.ID, "duration", time.Since(start))
	return nil
}

// GetDocument returns a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (lyceum.Document, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get document", "id", id)

	var doc lyceum.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, content, created_at, updated_at FROM documents WHERE id = ?`,
		id,
	).Scan(&doc.ID, &doc.Title, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lyceum.Document{}, lyceum.ErrDocumentNotFound
	}
	if err != nil {
		s.logger.Error("sqlite: get document failed", "id", id, "error", err, "duration", time.Since(start))
		return lyceum.Document{}, fmt.Errorf("get document: %w", err)
	}
	s.logger.Debug("sqlite: get document ok", "id", id, "duration", time.Since(start))
	return doc, nil
}

// AppendDocument appends content to an existing document and bumps its
// updated_at timestamp.
func (s *Store) AppendDocument(ctx context.Context, id, content string) error {
	start := time.Now()
	s.logger.Debug("sqlite: append document", "id", id, "chars", len(content))

	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET content = content || ?, updated_at = ? WHERE id = ?`,
		content, time.Now().Unix(), id,
	)
	if err != nil {
		s.logger.Error("sqlite: append document failed", "id", id, "error", err, "duration", time.Since(start))
		return fmt.Errorf("append document: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return lyceum.ErrDocumentNotFound
	}
	s.logger.Debug("sqlite: append document ok", "id", id, "duration", time.Since(start))
	return nil
}

// ListDocuments returns documents ordered newest first. A limit <= 0
// returns all documents (SQLite treats LIMIT -1 as unbounded).
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]lyceum.Document, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list documents", "limit", limit)

	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, created_at, updated_at
		 FROM documents
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		s.logger.Error("sqlite: list documents failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []lyceum.Document
	for rows.Next() {
		var d lyceum.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Content, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}

	s.logger.Debug("sqlite: list documents ok", "count", len(docs), "duration", time.Since(start))
	return docs, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
