package lyceum

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// --- shared execution loop ---

// DispatchResult holds the result of a single tool dispatch.
type DispatchResult struct {
	Content string
	Usage   Usage
	// IsError signals that Content represents an error message rather than
	// a successful tool result. This enables structural error detection
	// without relying on string-prefix heuristics.
	IsError bool
}

// DispatchFunc executes a single tool call and returns the result.
// The stage executor provides one that calls Registry.Execute.
type DispatchFunc func(ctx context.Context, tc ToolCall) DispatchResult

// Conversation strings for the loop's degraded paths. The model sees tool
// failures as plain text and is expected to correct course on its next turn.
const (
	forcedSummaryPrompt = "Please provide your final comprehensive response based on all the information gathered."
	loopFallbackText    = "Agent completed but could not generate final response."
)

// makeDispatch adapts a Registry to the loop's DispatchFunc. Unknown tools
// and execution failures become conversation text, never loop aborts.
// toolTimeout bounds each execution; 0 means no limit.
func makeDispatch(reg *Registry, toolTimeout time.Duration) DispatchFunc {
	return func(ctx context.Context, tc ToolCall) DispatchResult {
		if toolTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, toolTimeout)
			defer cancel()
		}
		result, err := reg.Execute(ctx, tc.Name, tc.Args)
		if err != nil {
			var nf *ErrToolNotFound
			if errors.As(err, &nf) {
				return DispatchResult{Content: "Tool '" + tc.Name + "' not found", IsError: true}
			}
			return DispatchResult{Content: "Error executing tool " + tc.Name + ": " + err.Error(), IsError: true}
		}
		if result.Error != "" {
			return DispatchResult{Content: "Error executing tool " + tc.Name + ": " + result.Error, IsError: true}
		}
		return DispatchResult{Content: result.Content}
	}
}

// loopConfig holds everything the shared runLoop needs to run.
type loopConfig struct {
	name         string           // stage name, for logging and spans
	provider     Provider
	tools        []ToolDefinition // definitions offered to the model each round
	processors   *ProcessorChain
	maxRounds    int // tool rounds before forced synthesis
	dispatch     DispatchFunc
	modelTimeout time.Duration // per model call; 0 = no limit
	tracer       Tracer        // nil = no tracing
	logger       *slog.Logger  // never nil (nopLogger fallback)
}

// loopResult is what one complete loop run produced.
type loopResult struct {
	output string
	usage  Usage
	steps  []StepTrace
}

// maxToolResultMessageLen is the maximum rune length for a tool result stored
// in the conversation message history during the tool-calling loop. Results
// exceeding this limit are truncated with a marker so the LLM knows content
// was trimmed. This prevents unbounded memory growth from tools that return
// very large outputs (e.g. web search page extraction).
//
// Stream events and step traces retain the full content since they are
// transient and not accumulated across rounds.
const maxToolResultMessageLen = 100_000 // ~25K tokens

// maxParallelDispatch caps the number of concurrent tool call goroutines
// to avoid overwhelming external services with unbounded parallelism.
const maxParallelDispatch = 10

// runLoop drives one stage's tool-calling conversation. It makes at most
// maxRounds+1 model calls: each round either ends the loop with final text
// or requests tools, which are executed and fed back; after the last round
// a forced synthesis turn asks for the final response without offering
// tools. When ch is non-nil, tool events are emitted on it; the channel is
// owned by the caller and never closed here.
func runLoop(ctx context.Context, cfg loopConfig, messages []ChatMessage, ch chan<- StreamEvent) (loopResult, error) {
	var totalUsage Usage
	var steps []StepTrace

	callModel := func(ctx context.Context, req ChatRequest) (ChatResponse, error) {
		if cfg.modelTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.modelTimeout)
			defer cancel()
		}
		return cfg.provider.Chat(ctx, req)
	}

	for i := 0; i < cfg.maxRounds; i++ {
		// Start a round span if tracing is enabled.
		iterCtx := ctx
		var iterSpan Span
		if cfg.tracer != nil {
			iterCtx, iterSpan = cfg.tracer.Start(ctx, "stage.loop.iteration",
				IntAttr("iteration", i),
				BoolAttr("has_tools", len(cfg.tools) > 0))
		}
		endIter := func() {
			if iterSpan != nil {
				iterSpan.End()
			}
		}

		req := ChatRequest{Messages: messages, Tools: cfg.tools}

		// PreProcessor hook.
		if err := cfg.processors.RunPreLLM(iterCtx, &req); err != nil {
			endIter()
			return handleProcessorError(err, totalUsage, steps)
		}

		resp, err := callModel(iterCtx, req)
		if err != nil {
			endIter()
			return loopResult{usage: totalUsage, steps: steps}, err
		}
		totalUsage.InputTokens += resp.Usage.InputTokens
		totalUsage.OutputTokens += resp.Usage.OutputTokens

		// PostProcessor hook.
		if err := cfg.processors.RunPostLLM(iterCtx, &resp); err != nil {
			endIter()
			return handleProcessorError(err, totalUsage, steps)
		}

		if resp.Outcome() == TurnFinalText {
			endIter()
			return loopResult{output: resp.Content, usage: totalUsage, steps: steps}, nil
		}

		if iterSpan != nil {
			iterSpan.SetAttr(IntAttr("tool_count", len(resp.ToolCalls)))
		}

		// Lenient providers sometimes omit call IDs; synthesize them so
		// results still pair with their requests.
		for j := range resp.ToolCalls {
			if resp.ToolCalls[j].ID == "" {
				resp.ToolCalls[j].ID = "call_" + NewID()
			}
		}

		// Append assistant message with tool calls.
		messages = append(messages, ChatMessage{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		// Emit tool-call-start events before dispatch.
		if ch != nil {
			for _, tc := range resp.ToolCalls {
				select {
				case ch <- StreamEvent{Type: EventToolCallStart, ID: tc.ID, Name: cfg.name, Tool: tc.Name, Args: tc.Args}:
				case <-ctx.Done():
				}
			}
		}

		// Execute tool calls in parallel; results come back in request order.
		results := dispatchParallel(iterCtx, resp.ToolCalls, cfg.dispatch)

		// Process results sequentially (PostToolProcessor + message assembly + trace collection).
		for j, tc := range resp.ToolCalls {
			totalUsage.InputTokens += results[j].usage.InputTokens
			totalUsage.OutputTokens += results[j].usage.OutputTokens

			if ch != nil {
				select {
				case ch <- StreamEvent{
					Type:     EventToolCallResult,
					ID:       tc.ID,
					Name:     cfg.name,
					Tool:     tc.Name,
					Content:  results[j].content,
					Usage:    results[j].usage,
					Duration: results[j].duration,
				}:
				case <-ctx.Done():
				}
			}

			steps = append(steps, buildStepTrace(tc, results[j]))

			result := ToolResult{Content: results[j].content}
			if err := cfg.processors.RunPostTool(iterCtx, tc, &result); err != nil {
				endIter()
				return handleProcessorError(err, totalUsage, steps)
			}
			// Truncate large tool results before appending to message history
			// to prevent unbounded memory growth across rounds. Stream events
			// and step traces retain the full content (transient).
			msgContent := result.Content
			if len([]rune(msgContent)) > maxToolResultMessageLen {
				msgContent = truncateStr(msgContent, maxToolResultMessageLen) + "\n\n[output truncated; original was longer]"
			}
			messages = append(messages, ToolResultMessage(tc.ID, msgContent))
		}
		endIter()
	}

	// Budget exhausted; force synthesis without tools.
	cfg.logger.Warn("max tool rounds reached, forcing synthesis", "stage", cfg.name, "rounds", cfg.maxRounds)
	messages = append(messages, UserMessage(forcedSummaryPrompt))

	synthCtx := ctx
	if cfg.tracer != nil {
		var synthSpan Span
		synthCtx, synthSpan = cfg.tracer.Start(ctx, "stage.loop.synthesis",
			IntAttr("iteration", cfg.maxRounds),
			BoolAttr("forced", true))
		defer synthSpan.End()
	}

	resp, err := callModel(synthCtx, ChatRequest{Messages: messages})
	if err != nil {
		return loopResult{usage: totalUsage, steps: steps}, err
	}
	totalUsage.InputTokens += resp.Usage.InputTokens
	totalUsage.OutputTokens += resp.Usage.OutputTokens

	// PostProcessor hook.
	if err := cfg.processors.RunPostLLM(synthCtx, &resp); err != nil {
		return handleProcessorError(err, totalUsage, steps)
	}

	output := resp.Content
	if output == "" {
		output = loopFallbackText
	}
	return loopResult{output: output, usage: totalUsage, steps: steps}, nil
}

// handleProcessorError converts a processor error into a loopResult.
// ErrHalt produces a graceful result; other errors propagate as failures.
// Any step traces collected before the error are preserved in the result.
func handleProcessorError(err error, usage Usage, steps []StepTrace) (loopResult, error) {
	var halt *ErrHalt
	if errors.As(err, &halt) {
		return loopResult{output: halt.Response, usage: usage, steps: steps}, nil
	}
	return loopResult{usage: usage, steps: steps}, err
}

// buildStepTrace creates a StepTrace from a tool call and its execution result.
func buildStepTrace(tc ToolCall, res toolExecResult) StepTrace {
	return StepTrace{
		Name:     tc.Name,
		Type:     "tool",
		Input:    truncateStr(string(tc.Args), 200),
		Output:   truncateStr(res.content, 500),
		IsError:  res.isError,
		Usage:    res.usage,
		Duration: res.duration,
	}
}

// --- parallel tool dispatch ---

// toolExecResult holds the result of a single parallel tool call.
type toolExecResult struct {
	content  string
	usage    Usage
	duration time.Duration
	isError  bool
}

// indexedResult pairs a tool execution result with its position in the
// original call slice, allowing channel-based collection in order.
type indexedResult struct {
	idx    int
	result toolExecResult
}

// safeDispatch wraps a dispatch call with panic recovery. If the dispatched
// tool panics, the panic is caught and converted to an error result instead
// of crashing the process.
func safeDispatch(ctx context.Context, tc ToolCall, dispatch DispatchFunc) (dr DispatchResult) {
	defer func() {
		if p := recover(); p != nil {
			dr = DispatchResult{Content: "Error executing tool " + tc.Name + ": panic in tool", IsError: true}
		}
	}()
	return dispatch(ctx, tc)
}

// dispatchParallel runs all tool calls concurrently via the dispatch function
// and returns results in the same order as the input calls.
// Single calls run inline (no goroutine). Multiple calls use a fixed worker
// pool of min(len(calls), maxParallelDispatch) goroutines pulling from a
// shared work channel, avoiding unbounded goroutine creation.
//
// The collection loop is context-aware: if ctx is cancelled while tool calls
// are still in-flight, the function returns immediately with context-error
// results for incomplete calls instead of blocking indefinitely.
func dispatchParallel(ctx context.Context, calls []ToolCall, dispatch DispatchFunc) []toolExecResult {
	// Fast path: single call, no goroutine needed.
	if len(calls) == 1 {
		start := time.Now()
		dr := safeDispatch(ctx, calls[0], dispatch)
		return []toolExecResult{{content: dr.Content, usage: dr.Usage, duration: time.Since(start), isError: dr.IsError}}
	}

	resultCh := make(chan indexedResult, len(calls))

	// Work channel: each item is an (index, ToolCall) pair for workers to consume.
	type workItem struct {
		idx int
		tc  ToolCall
	}
	workCh := make(chan workItem, len(calls))
	for i, tc := range calls {
		workCh <- workItem{idx: i, tc: tc}
	}
	close(workCh)

	// Spawn a fixed pool of workers, never more goroutines than needed.
	numWorkers := min(len(calls), maxParallelDispatch)
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for range numWorkers {
		go func() {
			defer wg.Done()
			for w := range workCh {
				if ctx.Err() != nil {
					resultCh <- indexedResult{w.idx, toolExecResult{content: "error: " + ctx.Err().Error(), isError: true}}
					continue
				}
				start := time.Now()
				dr := safeDispatch(ctx, w.tc, dispatch)
				resultCh <- indexedResult{w.idx, toolExecResult{content: dr.Content, usage: dr.Usage, duration: time.Since(start), isError: dr.IsError}}
			}
		}()
	}

	// Close resultCh once all workers are done.
	go func() {
		wg.Wait()
		close(resultCh)
	}()

	// Collect results, bailing out if ctx is cancelled while calls are in-flight.
	results := make([]toolExecResult, len(calls))
	seen := make([]bool, len(calls))
collect:
	for received := 0; received < len(calls); received++ {
		select {
		case r, ok := <-resultCh:
			if !ok {
				break collect
			}
			results[r.idx] = r.result
			seen[r.idx] = true
		case <-ctx.Done():
			errResult := toolExecResult{content: "error: " + ctx.Err().Error(), isError: true}
			for i := range results {
				if !seen[i] {
					results[i] = errResult
				}
			}
			return results
		}
	}
	// Fill any unseen results (e.g. channel closed early) with error markers.
	for i := range results {
		if !seen[i] {
			results[i] = toolExecResult{content: "error: result not received", isError: true}
		}
	}
	return results
}

// truncateStr truncates a string to n runes.
func truncateStr(s string, n int) string {
	// Fast path: byte length ≤ n guarantees rune count ≤ n,
	// avoiding the []rune allocation for short/ASCII strings.
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
