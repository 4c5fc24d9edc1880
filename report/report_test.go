package report

import (
	"os"
	"strings"
	"testing"

	"github.com/nandika/lyceum"
)

func fullState() lyceum.RunState {
	st := lyceum.NewRunState("Graph Theory")
	st.KnowledgeBase = "# Graph Theory\n\nA graph is a set of vertices and edges."
	st.Roadmap = "Week 1: basics. Week 2: traversals."
	st.Resources = "- [CLRS](https://example.com/clrs)"
	st.PracticeMaterials = "Flashcard: what is a vertex?"
	st.CompletedStages = []string{"professor", "academic_advisor", "research_librarian", "teaching_assistant"}
	st.ArtifactLinks = map[string]string{
		"professor":        "https://docs.example.com/document/d/doc_1/edit",
		"academic_advisor": "https://docs.example.com/document/d/doc_2/edit",
	}
	st.Usage = lyceum.Usage{InputTokens: 1200, OutputTokens: 800}
	return st
}

func TestMarkdownSections(t *testing.T) {
	md := Markdown(fullState())

	if !strings.Contains(md, "# Learning Package: Graph Theory") {
		t.Errorf("expected title, got:\n%s", md)
	}
	for _, heading := range []string{"## Knowledge Base", "## Learning Roadmap", "## Learning Resources", "## Practice Materials"} {
		if !strings.Contains(md, heading) {
			t.Errorf("missing section %q", heading)
		}
	}
	if !strings.Contains(md, "vertices and edges") {
		t.Error("missing knowledge base content")
	}
}

func TestMarkdownContents(t *testing.T) {
	md := Markdown(fullState())

	if !strings.Contains(md, "- [Knowledge Base](#knowledge-base)") {
		t.Errorf("expected TOC entry, got:\n%s", md)
	}
	if !strings.Contains(md, "- [Practice Materials](#practice-materials)") {
		t.Errorf("expected TOC entry, got:\n%s", md)
	}
}

func TestMarkdownDocumentTable(t *testing.T) {
	md := Markdown(fullState())

	if !strings.Contains(md, "## Documents") {
		t.Fatal("missing documents table")
	}
	if !strings.Contains(md, "| Knowledge Base | <https://docs.example.com/document/d/doc_1/edit> |") {
		t.Errorf("missing document row, got:\n%s", md)
	}
	// Stages without links get no row.
	if strings.Contains(md, "| Learning Resources |") {
		t.Error("unexpected row for stage without link")
	}
}

func TestMarkdownPartialRun(t *testing.T) {
	st := lyceum.NewRunState("Graph Theory")
	st.KnowledgeBase = "Vertices and edges."
	st.CompletedStages = []string{"professor"}

	md := Markdown(st)
	if !strings.Contains(md, "Vertices and edges.") {
		t.Error("missing completed stage content")
	}
	if strings.Count(md, "_Not generated._") != 3 {
		t.Errorf("expected 3 placeholder sections, got:\n%s", md)
	}
	if strings.Contains(md, "## Documents") {
		t.Error("unexpected documents table with no links")
	}
}

func TestMarkdownUsageFooter(t *testing.T) {
	md := Markdown(fullState())
	if !strings.Contains(md, "1200 input tokens, 800 output tokens.") {
		t.Errorf("expected usage footer, got:\n%s", md)
	}
}

func TestHTML(t *testing.T) {
	page, err := HTML(fullState())
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}

	if !strings.Contains(page, "<title>Graph Theory</title>") {
		t.Error("missing page title")
	}
	if !strings.Contains(page, `id="knowledge-base"`) {
		t.Errorf("expected heading id for TOC anchor, got:\n%s", page)
	}
	if !strings.Contains(page, "<table>") {
		t.Error("expected documents table to render as HTML table")
	}
}

func TestHTMLEscapesTopic(t *testing.T) {
	st := lyceum.NewRunState("Graphs <& Trees>")
	page, err := HTML(st)
	if err != nil {
		t.Fatalf("HTML: %v", err)
	}
	if !strings.Contains(page, "<title>Graphs &lt;&amp; Trees&gt;</title>") {
		t.Errorf("expected escaped title, got:\n%s", page)
	}
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	st := fullState()

	mdPath, htmlPath, err := Write(dir, st)
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	md, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatalf("read md: %v", err)
	}
	if !strings.Contains(string(md), "# Learning Package: Graph Theory") {
		t.Error("md file missing title")
	}

	page, err := os.ReadFile(htmlPath)
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	if !strings.Contains(string(page), "<!DOCTYPE html>") {
		t.Error("html file missing doctype")
	}
}
