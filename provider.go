package lyceum

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Provider abstracts the LLM backend. Tool definitions travel inside the
// request; a response carrying tool calls is the model asking the caller to
// run them and continue the conversation.
type Provider interface {
	// Chat sends a request and returns a complete response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Name returns the provider name (e.g. "openrouter", "openai").
	Name() string
}

// ParseRetryAfter parses a Retry-After header value into a duration.
// Accepts delta-seconds ("120") or an HTTP-date. Returns 0 for empty or
// unparseable values.
func ParseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
