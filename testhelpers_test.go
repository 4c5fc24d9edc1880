package lyceum

import (
	"context"
	"encoding/json"
	"errors"
)

// mockProvider returns pre-configured responses in order and records every
// request it receives, so tests can assert on call counts and message
// assembly.
type mockProvider struct {
	name      string
	responses []ChatResponse // popped in order
	idx       int
	requests  []ChatRequest // every request received, in call order
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Chat(_ context.Context, req ChatRequest) (ChatResponse, error) {
	m.requests = append(m.requests, req)
	if m.idx >= len(m.responses) {
		return ChatResponse{Content: "exhausted"}, nil
	}
	resp := m.responses[m.idx]
	m.idx++
	return resp, nil
}

var _ Provider = (*mockProvider)(nil)

// errProvider always fails with a fixed error.
type errProvider struct {
	name string
	err  error
}

func (e *errProvider) Name() string { return e.name }
func (e *errProvider) Chat(context.Context, ChatRequest) (ChatResponse, error) {
	return ChatResponse{}, e.err
}

// docTool is a document-capability Tool returning a canned confirmation
// with a link, shaped like the docs service response. It records calls so
// tests can assert on the explicit-creation fallback.
type docTool struct {
	link    string // returned link; empty means a fixed default
	failure string // when set, Execute returns ToolResult{Error: failure}
	calls   int
	titles  []string // title argument of each call, in order
}

func (d *docTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "create_document", Description: "Create a document"}}
}

func (d *docTool) Execute(_ context.Context, _ string, args json.RawMessage) (ToolResult, error) {
	d.calls++
	var a struct {
		Title string `json:"title"`
	}
	_ = json.Unmarshal(args, &a)
	d.titles = append(d.titles, a.Title)
	if d.failure != "" {
		return ToolResult{Error: d.failure}, nil
	}
	link := d.link
	if link == "" {
		link = "https://docs.example.com/document/d/doc_test1/edit"
	}
	return ToolResult{Content: "Created document \"" + a.Title + "\". Link: " + link}, nil
}

// searchTool is a search-capability Tool with canned results.
type searchTool struct {
	content string
}

func (s searchTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "web_search", Description: "Search the web"}}
}

func (s searchTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	if s.content == "" {
		return ToolResult{Content: "no results"}, nil
	}
	return ToolResult{Content: s.content}, nil
}

// errTool always fails at the transport level.
type errTool struct{}

func (errTool) Definitions() []ToolDefinition {
	return []ToolDefinition{{Name: "explode", Description: "Always fails"}}
}

func (errTool) Execute(_ context.Context, _ string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{}, errors.New("tool broken")
}

// multiTool serves two definitions from one Tool.
type multiTool struct{}

func (multiTool) Definitions() []ToolDefinition {
	return []ToolDefinition{
		{Name: "notes_read", Description: "Read notes"},
		{Name: "notes_write", Description: "Write notes"},
	}
}

func (multiTool) Execute(_ context.Context, name string, _ json.RawMessage) (ToolResult, error) {
	return ToolResult{Content: "did " + name}, nil
}
