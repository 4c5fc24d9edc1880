package lyceum

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// StreamEventType identifies the kind of streaming event.
type StreamEventType string

const (
	// EventRunStart signals a run has been accepted.
	// ID carries the run ID; Content carries the topic.
	EventRunStart StreamEventType = "run-start"
	// EventStageStart signals the supervisor has routed to a stage.
	// Name carries the stage name.
	EventStageStart StreamEventType = "stage-start"
	// EventToolCallStart signals a tool is about to be invoked.
	// Name carries the stage name; Tool carries the tool name.
	EventToolCallStart StreamEventType = "tool-call-start"
	// EventToolCallResult carries the result of a completed tool call.
	EventToolCallResult StreamEventType = "tool-call-result"
	// EventStageFinish signals a stage has completed and been merged.
	// Name carries the stage name; Content the stage text; Link the
	// extracted artifact link, if any.
	EventStageFinish StreamEventType = "stage-finish"
)

// StreamEvent is a typed event emitted during a streaming run.
// Consumers receive these on the channel passed to RunStream.
type StreamEvent struct {
	// Type identifies the event kind.
	Type StreamEventType `json:"type"`
	// ID is the run ID (run-start) or the tool call ID (tool events).
	ID string `json:"id,omitempty"`
	// Name is the stage name (set for stage and tool events).
	Name string `json:"name,omitempty"`
	// Tool is the tool name (tool events only).
	Tool string `json:"tool,omitempty"`
	// Content carries the topic (run-start), the tool result
	// (tool-call-result), or the stage text (stage-finish).
	Content string `json:"content,omitempty"`
	// Link is the artifact link extracted for the stage (stage-finish only).
	Link string `json:"link,omitempty"`
	// Args carries the tool call arguments (tool-call-start only).
	Args json.RawMessage `json:"args,omitempty"`
	// Usage carries token counts for the completed step.
	// Set on stage-finish and tool-call-result events. Zero value otherwise.
	Usage Usage `json:"usage,omitempty"`
	// Duration is the wall-clock time for the completed step.
	// Set on stage-finish and tool-call-result events. Zero value otherwise.
	Duration time.Duration `json:"duration,omitempty"`
}

// StreamingRunner runs a topic while emitting progress events.
// *Engine implements it.
type StreamingRunner interface {
	RunStream(ctx context.Context, topic string, ch chan<- StreamEvent) (RunState, error)
}

// ServeSSE streams a run's progress as Server-Sent Events over HTTP.
//
// It validates that w implements [http.Flusher], sets SSE headers, creates a
// buffered [StreamEvent] channel, runs the topic in a background goroutine,
// and writes each event as:
//
//	event: <event-type>
//	data: <json-encoded StreamEvent>
//
// On completion it sends a final "done" event carrying the run state. If the
// run returns an error, it is sent as an "error" event before returning.
//
// Client disconnection propagates via ctx cancellation to the run.
// Callers typically pass r.Context() as ctx.
func ServeSSE(ctx context.Context, w http.ResponseWriter, runner StreamingRunner, topic string) (RunState, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return RunState{}, fmt.Errorf("ResponseWriter does not implement http.Flusher")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan StreamEvent, 64)
	var closeOnce sync.Once
	safeClose := func() {
		closeOnce.Do(func() {
			// A panic unwinding past the runner's own deferred close
			// leaves ch already closed.
			defer func() { _ = recover() }()
			close(ch)
		})
	}

	type execResult struct {
		state RunState
		err   error
	}
	resultCh := make(chan execResult, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				// Ensure ch is closed so the for-range loop below does
				// not block forever, then signal the error.
				safeClose()
				resultCh <- execResult{RunState{}, fmt.Errorf("run panic: %v", p)}
				return
			}
		}()
		s, err := runner.RunStream(ctx, topic, ch)
		resultCh <- execResult{s, err}
	}()

	for ev := range ch {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
		flusher.Flush()
	}

	res := <-resultCh

	if res.err != nil {
		errData, _ := json.Marshal(map[string]string{"error": res.err.Error()})
		fmt.Fprintf(w, "event: error\ndata: %s\n\n", errData)
		flusher.Flush()
		return res.state, res.err
	}

	doneData, _ := json.Marshal(res.state)
	fmt.Fprintf(w, "event: done\ndata: %s\n\n", doneData)
	flusher.Flush()

	return res.state, nil
}

// WriteSSEEvent writes a single Server-Sent Event to w and flushes.
// It validates that w implements [http.Flusher], JSON-marshals data into
// the SSE data field, and flushes immediately. eventType is the SSE event
// name (e.g. "stage-start", "done").
//
// Use this to compose custom SSE loops with [StreamingRunner.RunStream]:
//
//	ch := make(chan lyceum.StreamEvent, 64)
//	go engine.RunStream(ctx, topic, ch)
//	for ev := range ch {
//	    lyceum.WriteSSEEvent(w, string(ev.Type), ev)
//	}
//	lyceum.WriteSSEEvent(w, "done", customPayload)
func WriteSSEEvent(w http.ResponseWriter, eventType string, data any) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("ResponseWriter does not implement http.Flusher")
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal sse data: %w", err)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, encoded)
	flusher.Flush()
	return nil
}
