// Package docs provides document creation tools backed by a
// lyceum.DocumentStore. Every result that touches a document includes its
// full link so downstream extraction can pick it up.
package docs

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	lyceum "github.com/nandika/lyceum"
)

// Tool creates and extends documents in a DocumentStore.
type Tool struct {
	store lyceum.DocumentStore
	links *lyceum.ArtifactExtractor
}

// Option configures a Tool.
type Option func(*Tool)

// WithBaseURL sets the base URL used to build document links
// (default lyceum.DefaultDocumentBase).
func WithBaseURL(base string) Option {
	return func(t *Tool) { t.links = lyceum.NewArtifactExtractor(base) }
}

// New creates a document tool over store.
func New(store lyceum.DocumentStore, opts ...Option) *Tool {
	t := &Tool{
		store: store,
		links: lyceum.NewArtifactExtractor(""),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Definitions lists the document tools. create_document comes first; it is
// the primary function used when a stage must produce a document directly.
func (t *Tool) Definitions() []lyceum.ToolDefinition {
	return []lyceum.ToolDefinition{
		{
			Name:        "create_document",
			Description: "Create a new document with a title and markdown content. Returns the document link.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"title":{"type":"string","description":"Document title"},"content":{"type":"string","description":"Markdown content"}},"required":["title","content"]}`),
		},
		{
			Name:        "append_document",
			Description: "Append markdown content to an existing document. Accepts the document ID or its full link.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"document_id":{"type":"string","description":"Document ID or link"},"content":{"type":"string","description":"Markdown content to append"}},"required":["document_id","content"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (lyceum.ToolResult, error) {
	var params struct {
		Title      string `json:"title"`
		Content    string `json:"content"`
		DocumentID string `json:"document_id"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return lyceum.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	switch name {
	case "create_document":
		return t.create(ctx, params.Title, params.Content)
	case "append_document":
		return t.append(ctx, params.DocumentID, params.Content)
	default:
		return lyceum.ToolResult{Error: "unknown document tool: " + name}, nil
	}
}

func (t *Tool) create(ctx context.Context, title, content string) (lyceum.ToolResult, error) {
	if title == "" {
		return lyceum.ToolResult{Error: "title is required"}, nil
	}
	now := lyceum.NowUnix()
	doc := lyceum.Document{
		ID:        "doc_" + lyceum.NewID(),
		Title:     title,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.store.CreateDocument(ctx, doc); err != nil {
		return lyceum.ToolResult{Error: "create document: " + err.Error()}, nil
	}
	link := t.links.Canonical(doc.ID)
	return lyceum.ToolResult{
		Content: fmt.Sprintf("Created document %q.\nLink: %s", title, link),
	}, nil
}

func (t *Tool) append(ctx context.Context, ref, content string) (lyceum.ToolResult, error) {
	id := t.documentID(ref)
	if id == "" {
		return lyceum.ToolResult{Error: "document_id is required"}, nil
	}
	if err := t.store.AppendDocument(ctx, id, content); err != nil {
		return lyceum.ToolResult{Error: "append document: " + err.Error()}, nil
	}
	link := t.links.Canonical(id)
	return lyceum.ToolResult{
		Content: fmt.Sprintf("Appended %d characters to document %s.\nLink: %s", len(content), id, link),
	}, nil
}

// documentID accepts either a bare document ID or a full document link and
// returns the ID.
func (t *Tool) documentID(ref string) string {
	ref = strings.TrimSpace(ref)
	if i := strings.Index(ref, "/document/d/"); i >= 0 {
		rest := ref[i+len("/document/d/"):]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			rest = rest[:j]
		}
		return rest
	}
	return ref
}
