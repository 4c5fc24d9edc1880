package lyceum

import (
	"encoding/json"
	"regexp"
	"strings"
)

// DefaultDocumentBase is the document service base URL used to build
// canonical links from bare identifiers when no base is configured.
const DefaultDocumentBase = "https://docs.example.com"

// Patterns for document references in model output. A full link is matched
// against any host so references the model copied verbatim survive; bare
// identifiers follow the doc_ prefix convention of the document service.
var (
	artifactLinkPattern = regexp.MustCompile(`https?://[\w.-]+/document/d/[A-Za-z0-9_-]+(?:/[A-Za-z0-9_/-]*)?`)
	artifactBarePattern = regexp.MustCompile(`\bdoc_[A-Za-z0-9_-]+\b`)
	artifactIDPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// structuredIDFields are the JSON keys checked, in order, when a tool
// result carries a structured document identifier.
var structuredIDFields = []string{"document_id", "documentId", "id"}

// ArtifactExtractor finds document references in text and normalizes them
// to canonical links. Extraction is idempotent: running it over its own
// output yields the same link.
type ArtifactExtractor struct {
	base string
}

// NewArtifactExtractor creates an extractor that canonicalizes bare
// identifiers against base (DefaultDocumentBase when empty).
func NewArtifactExtractor(base string) *ArtifactExtractor {
	if base == "" {
		base = DefaultDocumentBase
	}
	return &ArtifactExtractor{base: strings.TrimRight(base, "/")}
}

// Extract returns the first document reference found in text as a link.
// Precedence when multiple forms are present:
//
//  1. a full link, returned verbatim (authoritative over any bare ID)
//  2. a structured identifier in a JSON object payload
//  3. a bare doc_ identifier
//
// Bare identifiers and structured IDs are canonicalized via Canonical.
// ok is false when text contains no reference; that is a legitimate
// outcome, not an error.
func (e *ArtifactExtractor) Extract(text string) (link string, ok bool) {
	if m := artifactLinkPattern.FindString(text); m != "" {
		return m, true
	}
	if id, found := structuredID(text); found {
		return e.Canonical(id), true
	}
	if m := artifactBarePattern.FindString(text); m != "" {
		return e.Canonical(m), true
	}
	return "", false
}

// Canonical builds the canonical link for a document ID.
func (e *ArtifactExtractor) Canonical(id string) string {
	return e.base + "/document/d/" + id + "/edit"
}

// structuredID pulls a document identifier out of a JSON object payload.
// Only whole-object payloads are considered; prose containing braces is
// left to the regex layers.
func structuredID(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return "", false
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return "", false
	}
	for _, field := range structuredIDFields {
		raw, present := payload[field]
		if !present {
			continue
		}
		var id string
		if json.Unmarshal(raw, &id) == nil && artifactIDPattern.MatchString(id) {
			return id, true
		}
	}
	return "", false
}
