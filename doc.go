// Package lyceum builds a complete learning package for a topic by running
// a fixed sequence of LLM stages, each a tool-calling loop over document
// and web-search tools.
//
// Four stages build on each other: professor writes the knowledge base,
// academic_advisor turns it into a learning roadmap, research_librarian
// collects resources, and teaching_assistant produces practice materials.
// A rule-based supervisor always routes to the first incomplete stage, so a
// run is deterministic and resumable; it ends when the supervisor reports
// FINISH.
//
// # Quick Start
//
//	provider := openaicompat.NewProvider(apiKey, "openai/gpt-4o-mini",
//		"https://openrouter.ai/api/v1", openaicompat.WithName("openrouter"))
//	store := sqlite.New("lyceum.db")
//
//	registry := lyceum.NewRegistry()
//	registry.Add(docs.New(store), lyceum.CapabilityDocumentWrite)
//	registry.Add(search.New(braveKey), lyceum.CapabilitySearch)
//
//	engine := lyceum.NewEngine(provider, registry)
//	state, err := engine.Run(ctx, "Graph Theory")
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Provider]: LLM backend (chat with tool calling)
//   - [Tool]: pluggable capability for LLM function calling
//   - [AsyncTool]: optional non-blocking execution, discovered by type assertion
//   - [DocumentStore]: persistence backing the document tool
//   - [PreProcessor], [PostProcessor], [PostToolProcessor]: message, response, and tool result transformers
//
// # Included Implementations
//
// Providers: provider/openaicompat (OpenAI-compatible APIs, including OpenRouter).
// Storage: store/sqlite (local), store/postgres (pgx pool).
// Tools: tools/docs (document creation), tools/search (Brave web search).
//
// See the cmd/lyceum directory for a complete reference application.
package lyceum
