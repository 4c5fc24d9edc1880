package lyceum

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
)

// --- prompt assembly ---

func TestAssembleMessagesProfessor(t *testing.T) {
	desc, _ := stageByName(StageProfessor)
	state := NewRunState("Graph Theory")

	msgs := assembleMessages(desc, state)
	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Errorf("roles = %q, %q", msgs[0].Role, msgs[1].Role)
	}
	for i, m := range msgs {
		if !strings.Contains(m.Content, "Graph Theory") {
			t.Errorf("msgs[%d] does not mention the topic", i)
		}
		if strings.Contains(m.Content, "{topic}") {
			t.Errorf("msgs[%d] still contains a raw placeholder", i)
		}
	}
}

func TestAssembleMessagesDepTruncated(t *testing.T) {
	desc, _ := stageByName(StageAcademicAdvisor)
	state := NewRunState("Graph Theory")
	state = MergeStage(state, StageProfessor, StageOutput{
		Stage: StageProfessor,
		Text:  strings.Repeat("k", advisorKnowledgeBaseCap+500),
	})

	msgs := assembleMessages(desc, state)
	system := msgs[0].Content
	if !strings.Contains(system, strings.Repeat("k", advisorKnowledgeBaseCap)+truncationMarker) {
		t.Error("expected knowledge base cut at the cap with a trailing marker")
	}
	if strings.Contains(system, strings.Repeat("k", advisorKnowledgeBaseCap+1)) {
		t.Error("knowledge base exceeds its cap")
	}
}

func TestAssembleMessagesDepUnderCap(t *testing.T) {
	desc, _ := stageByName(StageAcademicAdvisor)
	state := NewRunState("Graph Theory")
	state = MergeStage(state, StageProfessor, StageOutput{Stage: StageProfessor, Text: "short kb"})

	msgs := assembleMessages(desc, state)
	if !strings.Contains(msgs[0].Content, "short kb") {
		t.Error("expected knowledge base text in system prompt")
	}
	if strings.Contains(msgs[0].Content, "short kb"+truncationMarker) {
		t.Error("text under the cap must not get a truncation marker")
	}
}

func TestAssembleMessagesDepMissing(t *testing.T) {
	desc, _ := stageByName(StageAcademicAdvisor)
	state := NewRunState("Graph Theory")

	msgs := assembleMessages(desc, state)
	if !strings.Contains(msgs[0].Content, depNotAvailable) {
		t.Error("expected placeholder text for an incomplete dependency")
	}
}

func TestAssembleMessagesDepCompletedButEmpty(t *testing.T) {
	desc, _ := stageByName(StageAcademicAdvisor)
	state := NewRunState("Graph Theory")
	state = MergeStage(state, StageProfessor, StageOutput{Stage: StageProfessor})

	msgs := assembleMessages(desc, state)
	// Completed-with-empty-text reads as empty, not as "not yet available".
	if strings.Contains(msgs[0].Content, depNotAvailable) {
		t.Error("completed dependency must not read as unavailable")
	}
	if strings.Contains(msgs[0].Content, "{knowledge_base}") {
		t.Error("placeholder left unsubstituted")
	}
}

func TestTruncateWithMarker(t *testing.T) {
	tests := []struct {
		name string
		in   string
		cap  int
		want string
	}{
		{"under cap", "abc", 5, "abc"},
		{"at cap", "abcde", 5, "abcde"},
		{"over cap", "abcdef", 5, "abcde" + truncationMarker},
		{"zero cap means no limit", "abcdef", 0, "abcdef"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateWithMarker(tt.in, tt.cap); got != tt.want {
				t.Errorf("truncateWithMarker(%q, %d) = %q, want %q", tt.in, tt.cap, got, tt.want)
			}
		})
	}
}

// --- stage execution ---

func testRegistry() (*Registry, *docTool) {
	doc := &docTool{}
	reg := NewRegistry()
	reg.Add(doc, CapabilityDocumentWrite)
	reg.Add(searchTool{content: "search hit"}, CapabilitySearch)
	return reg, doc
}

func TestStageCapabilityFiltering(t *testing.T) {
	link := "https://docs.example.com/document/d/doc_f/edit"

	// Professor is document-only, even with a search tool registered.
	provider := &mockProvider{responses: []ChatResponse{{Content: "done. Link: " + link}}}
	reg, _ := testRegistry()
	eng := NewEngine(provider, reg)
	desc, _ := stageByName(StageProfessor)

	if _, err := eng.exec.execute(context.Background(), desc, NewRunState("Graph Theory"), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tools := provider.requests[0].Tools
	if len(tools) != 1 || tools[0].Name != "create_document" {
		t.Errorf("professor tools = %+v, want create_document only", tools)
	}

	// Librarian gets both capabilities.
	provider = &mockProvider{responses: []ChatResponse{{Content: "done. Link: " + link}}}
	eng = NewEngine(provider, reg)
	desc, _ = stageByName(StageResearchLibrarian)
	state := NewRunState("Graph Theory")
	state = MergeStage(state, StageProfessor, StageOutput{Stage: StageProfessor, Text: "kb"})
	state = MergeStage(state, StageAcademicAdvisor, StageOutput{Stage: StageAcademicAdvisor, Text: "plan"})

	if _, err := eng.exec.execute(context.Background(), desc, state, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	names := map[string]bool{}
	for _, d := range provider.requests[0].Tools {
		names[d.Name] = true
	}
	if !names["create_document"] || !names["web_search"] {
		t.Errorf("librarian tools = %v, want both capabilities", names)
	}
}

func TestStageLinkExtractedFromText(t *testing.T) {
	link := "https://docs.example.com/document/d/doc_kb1/edit"
	provider := &mockProvider{responses: []ChatResponse{{Content: "Wrote it up. Link: " + link}}}
	reg, doc := testRegistry()
	eng := NewEngine(provider, reg)
	desc, _ := stageByName(StageProfessor)

	out, err := eng.exec.execute(context.Background(), desc, NewRunState("Graph Theory"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ArtifactLink != link {
		t.Errorf("ArtifactLink = %q, want %q", out.ArtifactLink, link)
	}
	if doc.calls != 0 {
		t.Errorf("doc tool calls = %d, link in text needs no explicit creation", doc.calls)
	}
	if out.Stage != StageProfessor {
		t.Errorf("Stage = %q", out.Stage)
	}
}

func TestStageExplicitFallbackCreatesDocument(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{{Content: "Here is the knowledge base."}}}
	reg, doc := testRegistry()
	eng := NewEngine(provider, reg)
	desc, _ := stageByName(StageProfessor)

	out, err := eng.exec.execute(context.Background(), desc, NewRunState("Graph Theory"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.calls != 1 {
		t.Fatalf("doc tool calls = %d, want explicit creation", doc.calls)
	}
	if doc.titles[0] != "Graph Theory - Knowledge Base" {
		t.Errorf("document title = %q", doc.titles[0])
	}
	if out.ArtifactLink == "" {
		t.Error("expected link from explicit creation")
	}
	if out.Text != "Here is the knowledge base." {
		t.Errorf("Text = %q", out.Text)
	}
}

func TestStageFailedCreationNotRetried(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "create_document", Args: json.RawMessage(`{"title":"KB"}`)}}},
		{Content: "could not save the document"},
	}}
	doc := &docTool{failure: "quota exceeded"}
	reg := NewRegistry()
	reg.Add(doc, CapabilityDocumentWrite)
	eng := NewEngine(provider, reg)
	desc, _ := stageByName(StageProfessor)

	out, err := eng.exec.execute(context.Background(), desc, NewRunState("Graph Theory"), nil)
	if err != nil {
		t.Fatalf("failed creation must not fail the stage: %v", err)
	}
	if doc.calls != 1 {
		t.Errorf("doc tool calls = %d, failed creation must not be retried", doc.calls)
	}
	if out.ArtifactLink != "" {
		t.Errorf("ArtifactLink = %q, want none", out.ArtifactLink)
	}
}

func TestStageDocCreatedButNoLinkInText(t *testing.T) {
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{{ID: "c1", Name: "create_document", Args: json.RawMessage(`{"title":"KB"}`)}}},
		{Content: "saved, but I will not repeat the address here"},
	}}
	reg, doc := testRegistry()
	eng := NewEngine(provider, reg)
	desc, _ := stageByName(StageProfessor)

	out, err := eng.exec.execute(context.Background(), desc, NewRunState("Graph Theory"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The document exists; creating another would duplicate it.
	if doc.calls != 1 {
		t.Errorf("doc tool calls = %d, want exactly the loop's own call", doc.calls)
	}
	if out.ArtifactLink != "" {
		t.Errorf("ArtifactLink = %q, want none", out.ArtifactLink)
	}
}

func TestStageModelErrorPropagates(t *testing.T) {
	provider := &errProvider{name: "down", err: &ErrHTTP{Status: 500, Body: "server error"}}
	reg, doc := testRegistry()
	eng := NewEngine(provider, reg)
	desc, _ := stageByName(StageProfessor)

	out, err := eng.exec.execute(context.Background(), desc, NewRunState("Graph Theory"), nil)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if out.Stage != StageProfessor {
		t.Errorf("Stage = %q", out.Stage)
	}
	if doc.calls != 0 {
		t.Errorf("doc tool calls = %d, no fallback on transport failure", doc.calls)
	}
}

func TestStageToolRoundsOverride(t *testing.T) {
	call := ToolCall{ID: "c", Name: "create_document", Args: json.RawMessage(`{"title":"X"}`)}
	provider := &mockProvider{responses: []ChatResponse{
		{ToolCalls: []ToolCall{call}},
		{Content: "forced summary text"},
	}}
	reg, _ := testRegistry()
	eng := NewEngine(provider, reg, WithToolRounds(1))
	desc, _ := stageByName(StageProfessor)

	out, err := eng.exec.execute(context.Background(), desc, NewRunState("Graph Theory"), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// One tool round plus the forced synthesis call.
	if len(provider.requests) != 2 {
		t.Fatalf("model calls = %d, want 2", len(provider.requests))
	}
	if len(provider.requests[1].Tools) != 0 {
		t.Error("synthesis call must not offer tools")
	}
	if out.Text != "forced summary text" {
		t.Errorf("Text = %q", out.Text)
	}
}

// --- descriptors ---

func TestStageDescriptors(t *testing.T) {
	wantOrder := []string{StageProfessor, StageAcademicAdvisor, StageResearchLibrarian, StageTeachingAssistant}
	if len(Stages) != len(wantOrder) {
		t.Fatalf("pipeline length = %d, want %d", len(Stages), len(wantOrder))
	}
	for i, want := range wantOrder {
		if Stages[i].Name != want {
			t.Errorf("Stages[%d] = %q, want %q", i, Stages[i].Name, want)
		}
	}

	hasSearch := map[string]bool{
		StageResearchLibrarian: true,
		StageTeachingAssistant: true,
	}
	for _, desc := range Stages {
		if desc.Budget != defaultToolRounds {
			t.Errorf("stage %s budget = %d, want %d", desc.Name, desc.Budget, defaultToolRounds)
		}
		caps := map[Capability]bool{}
		for _, c := range desc.Capabilities {
			caps[c] = true
		}
		if !caps[CapabilityDocumentWrite] {
			t.Errorf("stage %s lacks document capability", desc.Name)
		}
		if caps[CapabilitySearch] != hasSearch[desc.Name] {
			t.Errorf("stage %s search capability = %v, want %v", desc.Name, caps[CapabilitySearch], hasSearch[desc.Name])
		}
		if desc.Title == "" {
			t.Errorf("stage %s has no document title", desc.Name)
		}
	}
}

func TestStageByNameUnknown(t *testing.T) {
	if _, ok := stageByName("bogus"); ok {
		t.Error("expected no descriptor for unknown stage")
	}
}
