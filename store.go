package lyceum

import (
	"context"
	"errors"
)

// ErrDocumentNotFound is returned by DocumentStore lookups for unknown IDs.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentStore abstracts persistence for generated documents. It is the
// backend of the document tool; run state itself is never persisted.
type DocumentStore interface {
	// --- Documents ---
	CreateDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	AppendDocument(ctx context.Context, id, content string) error
	ListDocuments(ctx context.Context, limit int) ([]Document, error)

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
