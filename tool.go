package lyceum

import (
	"context"
	"encoding/json"
)

// Tool defines a stage capability with one or more tool functions.
type Tool interface {
	Definitions() []ToolDefinition
	Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error)
}

// AsyncTool is an optional extension: tools that can run without blocking
// the caller implement it and deliver exactly one result on the returned
// channel. Support is discovered by type assertion; the registry degrades
// to blocking Execute when the assertion fails.
type AsyncTool interface {
	Tool
	ExecuteAsync(ctx context.Context, name string, args json.RawMessage) <-chan ToolResult
}

// ToolResult is the outcome of a tool execution.
type ToolResult struct {
	Content string `json:"content"`
	Error   string `json:"error,omitempty"`
}

// Capability classifies what a tool does. Stages authorize tools by
// capability tag declared at registration, never by inspecting tool names.
type Capability string

const (
	CapabilitySearch        Capability = "search"
	CapabilityDocumentWrite Capability = "document_write"
)

// Registry holds registered tools with their capability tags and dispatches
// execution.
type Registry struct {
	entries []registryEntry
}

type registryEntry struct {
	tool Tool
	caps []Capability
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a tool under the given capability tags.
func (r *Registry) Add(t Tool, caps ...Capability) {
	r.entries = append(r.entries, registryEntry{tool: t, caps: caps})
}

// Definitions returns tool definitions from all registered tools.
func (r *Registry) Definitions() []ToolDefinition {
	var defs []ToolDefinition
	for _, e := range r.entries {
		defs = append(defs, e.tool.Definitions()...)
	}
	return defs
}

// ByCapability returns a registry view holding only the tools tagged with
// at least one of the given capabilities. The view shares the underlying
// tools and keeps their tags.
func (r *Registry) ByCapability(caps ...Capability) *Registry {
	view := &Registry{}
	for _, e := range r.entries {
		if hasAny(e.caps, caps) {
			view.entries = append(view.entries, e)
		}
	}
	return view
}

// Capable reports whether the tool serving the named definition carries
// the given capability tag.
func (r *Registry) Capable(name string, c Capability) bool {
	for _, e := range r.entries {
		for _, d := range e.tool.Definitions() {
			if d.Name == name {
				return hasAny(e.caps, []Capability{c})
			}
		}
	}
	return false
}

// FirstDefinition returns the name of the first definition of the first
// tool tagged with c. Tools list their primary function first, so this is
// the canonical invocation target for a capability.
func (r *Registry) FirstDefinition(c Capability) (string, bool) {
	for _, e := range r.entries {
		if !hasAny(e.caps, []Capability{c}) {
			continue
		}
		defs := e.tool.Definitions()
		if len(defs) > 0 {
			return defs[0].Name, true
		}
	}
	return "", false
}

// Execute dispatches a tool call by name. An unregistered name yields a
// typed *ErrToolNotFound; callers decide whether that aborts or becomes
// conversation text.
func (r *Registry) Execute(ctx context.Context, name string, args json.RawMessage) (ToolResult, error) {
	t, ok := r.lookup(name)
	if !ok {
		return ToolResult{}, &ErrToolNotFound{Name: name}
	}
	return t.Execute(ctx, name, args)
}

// ExecuteAsync dispatches a tool call without blocking. Tools implementing
// AsyncTool run natively; all others degrade to a goroutine around blocking
// Execute. Exactly one result is delivered on the returned channel.
func (r *Registry) ExecuteAsync(ctx context.Context, name string, args json.RawMessage) <-chan ToolResult {
	ch := make(chan ToolResult, 1)
	t, ok := r.lookup(name)
	if !ok {
		ch <- ToolResult{Error: (&ErrToolNotFound{Name: name}).Error()}
		close(ch)
		return ch
	}
	if at, ok := t.(AsyncTool); ok {
		return at.ExecuteAsync(ctx, name, args)
	}
	go func() {
		res, err := t.Execute(ctx, name, args)
		if err != nil {
			res.Error = err.Error()
		}
		ch <- res
		close(ch)
	}()
	return ch
}

func (r *Registry) lookup(name string) (Tool, bool) {
	for _, e := range r.entries {
		for _, d := range e.tool.Definitions() {
			if d.Name == name {
				return e.tool, true
			}
		}
	}
	return nil, false
}

func hasAny(have, want []Capability) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}
