// Package search provides a web search tool backed by the Brave Search
// API. Result pages are fetched concurrently and reduced to readable text
// so the model sees article content instead of raw HTML.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	readability "github.com/go-shiori/go-readability"
	lyceum "github.com/nandika/lyceum"
)

const defaultAPIBase = "https://api.search.brave.com"

// Tool performs web searches via the Brave API.
type Tool struct {
	apiKey     string
	apiBase    string
	httpClient *http.Client
	maxResults int
	fetchPages bool
	extractCap int
	logger     *slog.Logger
}

// Option configures a Tool.
type Option func(*Tool)

// WithHTTPClient sets a custom HTTP client for both the search API and
// page fetches.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.httpClient = c }
}

// WithMaxResults caps how many results are requested per search (default 8).
func WithMaxResults(n int) Option {
	return func(t *Tool) {
		if n > 0 {
			t.maxResults = n
		}
	}
}

// WithoutPageFetch disables fetching result pages; only titles and
// snippets are returned. Useful for tests and constrained environments.
func WithoutPageFetch() Option {
	return func(t *Tool) { t.fetchPages = false }
}

// WithLogger sets the structured logger. If not set, output is discarded.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// New creates a search tool with a Brave Search API key.
func New(apiKey string, opts ...Option) *Tool {
	t := &Tool{
		apiKey:     apiKey,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxResults: 8,
		fetchPages: true,
		extractCap: 2000,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.New(slog.DiscardHandler)
	}
	return t
}

type braveResult struct {
	Title   string
	URL     string
	Snippet string
}

type resultWithContent struct {
	Result  braveResult
	Content string // readable extract, may be empty
}

func (t *Tool) Definitions() []lyceum.ToolDefinition {
	return []lyceum.ToolDefinition{{
		Name:        "web_search",
		Description: "Search the web for current information. Use to find articles, courses, videos, and other learning resources along with their URLs.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query optimized for search engines"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (lyceum.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return lyceum.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}

	content, err := t.Search(ctx, params.Query)
	if err != nil {
		return lyceum.ToolResult{Error: err.Error()}, nil
	}

	return lyceum.ToolResult{Content: content}, nil
}

// Search performs a web search and returns a formatted digest of the
// results with a Sources footer.
func (t *Tool) Search(ctx context.Context, query string) (string, error) {
	results, err := t.braveSearch(ctx, query, t.maxResults)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	enriched := t.fetchAndExtract(ctx, results)
	return formatResults(enriched), nil
}

func (t *Tool) braveSearch(ctx context.Context, query string, count int) ([]braveResult, error) {
	u := fmt.Sprintf("%s/res/v1/web/search?q=%s&count=%d",
		t.apiBase, url.QueryEscape(query), count)

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("brave API %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("brave parse error: %w", err)
	}

	var results []braveResult
	for _, r := range data.Web.Results {
		results = append(results, braveResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Description,
		})
	}
	return results, nil
}

// fetchAndExtract downloads each result page concurrently and reduces it
// to readable text. Fetch failures leave Content empty; the snippet still
// carries the result.
func (t *Tool) fetchAndExtract(ctx context.Context, results []braveResult) []resultWithContent {
	out := make([]resultWithContent, len(results))
	for i, r := range results {
		out[i] = resultWithContent{Result: r}
	}
	if !t.fetchPages {
		return out
	}

	var wg sync.WaitGroup
	for i, r := range results {
		wg.Add(1)
		go func(idx int, u string) {
			defer wg.Done()
			text, err := t.fetchReadable(ctx, u)
			if err != nil {
				t.logger.Debug("page fetch failed", "url", u, "error", err)
				return
			}
			out[idx].Content = text
		}(i, r.URL)
	}
	wg.Wait()

	return out
}

func (t *Tool) fetchReadable(ctx context.Context, pageURL string) (string, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, "GET", pageURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; LyceumBot/1.0)")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10)) // 512KB
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(strings.NewReader(string(body)), parsed)
	if err != nil {
		return "", err
	}

	text := strings.TrimSpace(article.TextContent)
	if runes := []rune(text); len(runes) > t.extractCap {
		text = string(runes[:t.extractCap])
	}
	return text, nil
}

func formatResults(results []resultWithContent) string {
	var out strings.Builder

	for i, r := range results {
		fmt.Fprintf(&out, "[%d] %s\n%s\n", i+1, r.Result.Title, r.Result.Snippet)
		if r.Content != "" {
			fmt.Fprintf(&out, "%s\n", r.Content)
		}
		out.WriteString("\n")
	}

	out.WriteString("Sources:\n")
	for _, r := range results {
		fmt.Fprintf(&out, "- %s (%s)\n", r.Result.Title, r.Result.URL)
	}

	return out.String()
}
