// Package report assembles a completed run's stage outputs into a single
// learning-package document, as Markdown or a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/nandika/lyceum"
)

// Markdown renders the run's four package sections as one Markdown
// document: title, table of contents, document link table, then one
// section per stage in pipeline order. Sections for stages that never
// produced text render a placeholder so partial runs stay readable.
func Markdown(state lyceum.RunState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Learning Package: %s\n\n", state.Topic)

	b.WriteString("## Contents\n\n")
	for _, desc := range lyceum.Stages {
		fmt.Fprintf(&b, "- [%s](#%s)\n", desc.Title, anchor(desc.Title))
	}
	b.WriteString("\n")

	if len(state.ArtifactLinks) > 0 {
		b.WriteString("## Documents\n\n")
		b.WriteString("| Section | Document |\n")
		b.WriteString("| --- | --- |\n")
		for _, desc := range lyceum.Stages {
			if link, ok := state.ArtifactLinks[desc.Name]; ok {
				fmt.Fprintf(&b, "| %s | <%s> |\n", desc.Title, link)
			}
		}
		b.WriteString("\n")
	}

	for _, desc := range lyceum.Stages {
		fmt.Fprintf(&b, "## %s\n\n", desc.Title)
		text := strings.TrimSpace(state.StageText(desc.Name))
		if text == "" {
			text = "_Not generated._"
		}
		b.WriteString(text)
		b.WriteString("\n\n")
	}

	if state.Usage.InputTokens > 0 || state.Usage.OutputTokens > 0 {
		fmt.Fprintf(&b, "---\n\n%d input tokens, %d output tokens.\n",
			state.Usage.InputTokens, state.Usage.OutputTokens)
	}

	return b.String()
}

// HTML renders the run as a standalone HTML page. Heading IDs are
// generated so the table of contents anchors resolve.
func HTML(state lyceum.RunState) (string, error) {
	gm := goldmark.New(
		goldmark.WithExtensions(extension.GFM),
		goldmark.WithParserOptions(parser.WithAutoHeadingID()),
	)

	var buf bytes.Buffer
	if err := gm.Convert([]byte(Markdown(state)), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return fmt.Sprintf(htmlShell, htmlEscape(state.Topic), buf.String()), nil
}

// Write renders both formats into dir as <runID>.md and <runID>.html and
// returns their paths.
func Write(dir string, state lyceum.RunState) (mdPath, htmlPath string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create report dir: %w", err)
	}

	base := filepath.Join(dir, state.ID)
	mdPath = base + ".md"
	if err := os.WriteFile(mdPath, []byte(Markdown(state)), 0o644); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}

	page, err := HTML(state)
	if err != nil {
		return "", "", err
	}
	htmlPath = base + ".html"
	if err := os.WriteFile(htmlPath, []byte(page), 0o644); err != nil {
		return "", "", fmt.Errorf("write report: %w", err)
	}

	return mdPath, htmlPath, nil
}

// anchor produces the heading ID goldmark's auto-heading-ID parser
// assigns to simple titles: lowercased, spaces as hyphens.
func anchor(title string) string {
	return strings.ReplaceAll(strings.ToLower(title), " ", "-")
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

const htmlShell = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>%s</title>
<style>
body { max-width: 48rem; margin: 2rem auto; padding: 0 1rem; font-family: system-ui, sans-serif; line-height: 1.6; color: #1a1a1a; }
h1, h2 { line-height: 1.25; }
h2 { border-bottom: 1px solid #ddd; padding-bottom: .3rem; }
pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; border-radius: 6px; }
code { background: #f6f8fa; padding: .1rem .3rem; border-radius: 4px; }
pre code { padding: 0; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ddd; padding: .4rem .6rem; }
blockquote { border-left: 4px solid #ddd; margin-left: 0; padding-left: 1rem; color: #555; }
</style>
</head>
<body>
%s
</body>
</html>
`
