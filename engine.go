package lyceum

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Default timeouts applied when the corresponding option is not set.
const (
	defaultModelTimeout = 120 * time.Second
	defaultToolTimeout  = 60 * time.Second
)

// Engine drives topics through the stage pipeline. Configuration is fixed
// at construction; a single Engine is safe for concurrent runs.
type Engine struct {
	exec   *stageExecutor
	logger *slog.Logger
	tracer Tracer
}

var _ StreamingRunner = (*Engine)(nil)

type engineConfig struct {
	processors   []any
	toolRounds   int
	modelTimeout time.Duration
	toolTimeout  time.Duration
	documentBase string
	tracer       Tracer
	logger       *slog.Logger
}

// EngineOption configures an Engine at construction.
type EngineOption func(*engineConfig)

// WithLogger sets the structured logger. If not set, a no-op logger is
// used (no output).
func WithLogger(l *slog.Logger) EngineOption {
	return func(c *engineConfig) { c.logger = l }
}

// WithTracer sets the tracer. When set, the engine emits spans for run,
// stage, and loop operations. Use observer.NewTracer() for an OTEL-backed
// implementation.
func WithTracer(t Tracer) EngineOption {
	return func(c *engineConfig) { c.tracer = t }
}

// WithProcessors adds processors to the execution pipeline. Each processor
// must implement at least one of PreProcessor, PostProcessor, or
// PostToolProcessor. Processors run in registration order at their hook
// points, after the built-in web-content guard.
func WithProcessors(processors ...any) EngineOption {
	return func(c *engineConfig) { c.processors = append(c.processors, processors...) }
}

// WithToolRounds overrides every stage's tool-round budget. The loop makes
// at most n+1 model calls per stage. Values < 1 are ignored.
func WithToolRounds(n int) EngineOption {
	return func(c *engineConfig) {
		if n > 0 {
			c.toolRounds = n
		}
	}
}

// WithModelTimeout bounds each individual model call. Zero disables the
// bound. Default 120s.
func WithModelTimeout(d time.Duration) EngineOption {
	return func(c *engineConfig) { c.modelTimeout = d }
}

// WithToolTimeout bounds each individual tool invocation. Zero disables
// the bound. Default 60s.
func WithToolTimeout(d time.Duration) EngineOption {
	return func(c *engineConfig) { c.toolTimeout = d }
}

// WithDocumentBase sets the base URL used to canonicalize bare document
// IDs found in stage output into full artifact links.
func WithDocumentBase(base string) EngineOption {
	return func(c *engineConfig) { c.documentBase = base }
}

// NewEngine builds an Engine over a model provider and a tool registry.
//
// The registry's capability tags decide which tools each stage sees. A
// web-content guard that screens search results for instruction-like text
// is always installed; WithProcessors appends after it.
func NewEngine(provider Provider, registry *Registry, opts ...EngineOption) *Engine {
	cfg := engineConfig{
		modelTimeout: defaultModelTimeout,
		toolTimeout:  defaultToolTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = nopLogger
	}
	if registry == nil {
		registry = NewRegistry()
	}

	chain := NewProcessorChain()
	chain.Add(NewFetchGuard(registry, FetchLogger(cfg.logger)))
	for _, p := range cfg.processors {
		chain.Add(p)
	}

	return &Engine{
		exec: &stageExecutor{
			provider:     provider,
			registry:     registry,
			processors:   chain,
			extractor:    NewArtifactExtractor(cfg.documentBase),
			toolRounds:   cfg.toolRounds,
			modelTimeout: cfg.modelTimeout,
			toolTimeout:  cfg.toolTimeout,
			tracer:       cfg.tracer,
			logger:       cfg.logger,
		},
		logger: cfg.logger,
		tracer: cfg.tracer,
	}
}

// Run executes the full pipeline for topic and returns the final state.
//
// On stage failure the partial state is returned alongside the error; pass
// it to Resume to retry from the failed stage.
func (e *Engine) Run(ctx context.Context, topic string) (RunState, error) {
	return e.drive(ctx, NewRunState(topic), nil)
}

// Resume re-enters the pipeline with a previously returned state. Stages
// recorded in CompletedStages keep their output; execution continues from
// the first stage missing from it, in pipeline order.
func (e *Engine) Resume(ctx context.Context, state RunState) (RunState, error) {
	st := state.Clone()
	if st.ID == "" {
		st.ID = NewID()
	}
	if st.CreatedAt == 0 {
		st.CreatedAt = NowUnix()
	}
	return e.drive(ctx, st, nil)
}

// RunStream is Run with progress events delivered on ch. The engine owns
// ch from this point and closes it when the run finishes, whatever the
// outcome.
func (e *Engine) RunStream(ctx context.Context, topic string, ch chan<- StreamEvent) (RunState, error) {
	return e.drive(ctx, NewRunState(topic), ch)
}

// ResumeStream is Resume with progress events delivered on ch.
func (e *Engine) ResumeStream(ctx context.Context, state RunState, ch chan<- StreamEvent) (RunState, error) {
	st := state.Clone()
	if st.ID == "" {
		st.ID = NewID()
	}
	if st.CreatedAt == 0 {
		st.CreatedAt = NowUnix()
	}
	return e.drive(ctx, st, ch)
}

// drive is the supervisor loop: route to the first incomplete stage,
// execute it, merge, repeat until the router yields the terminal marker.
func (e *Engine) drive(ctx context.Context, st RunState, ch chan<- StreamEvent) (RunState, error) {
	if ch != nil {
		defer close(ch)
	}

	var span Span
	if e.tracer != nil {
		ctx, span = e.tracer.Start(ctx, "run.execute",
			StringAttr("run.id", st.ID),
			StringAttr("run.topic", st.Topic))
		defer span.End()
	}

	e.logger.Info("run started", "run", st.ID, "topic", st.Topic)
	emit(ctx, ch, StreamEvent{Type: EventRunStart, ID: st.ID, Content: st.Topic})

	for {
		// Cancellation takes effect between stages only; a stage already
		// in flight finishes or fails on its own.
		if err := ctx.Err(); err != nil {
			st.NextStage = NextStage(st.CompletedStages)
			if span != nil {
				span.Error(err)
			}
			e.logger.Warn("run canceled", "run", st.ID, "next", st.NextStage)
			return st, err
		}

		next := NextStage(st.CompletedStages)
		st.NextStage = next
		if next == Terminal {
			break
		}
		desc, ok := stageByName(next)
		if !ok {
			err := fmt.Errorf("no stage registered for %q", next)
			if span != nil {
				span.Error(err)
			}
			return st, err
		}

		emit(ctx, ch, StreamEvent{Type: EventStageStart, Name: next})

		out, err := e.exec.execute(ctx, desc, st, ch)
		if err != nil {
			st = MarkStageFailed(st, next)
			st.NextStage = NextStage(st.CompletedStages)
			if span != nil {
				span.Error(err)
			}
			e.logger.Error("run failed", "run", st.ID, "stage", next, "error", err)
			return st, fmt.Errorf("stage %s: %w", next, err)
		}

		st = MergeStage(st, next, out)
		st.NextStage = NextStage(st.CompletedStages)

		emit(ctx, ch, StreamEvent{
			Type:     EventStageFinish,
			Name:     next,
			Content:  out.Text,
			Link:     out.ArtifactLink,
			Usage:    out.Usage,
			Duration: out.Duration,
		})
	}

	if span != nil {
		span.SetAttr(
			IntAttr("tokens.input", st.Usage.InputTokens),
			IntAttr("tokens.output", st.Usage.OutputTokens))
	}
	e.logger.Info("run completed", "run", st.ID,
		"stages", len(st.CompletedStages),
		"tokens.input", st.Usage.InputTokens,
		"tokens.output", st.Usage.OutputTokens)
	return st, nil
}

// emit sends ev on ch without blocking past ctx cancellation. No-op when
// ch is nil.
func emit(ctx context.Context, ch chan<- StreamEvent, ev StreamEvent) {
	if ch == nil {
		return
	}
	select {
	case ch <- ev:
	case <-ctx.Done():
	}
}

// nopLogger discards all output. Used when WithLogger is not set.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
