package observer

import (
	"context"
	"time"

	"github.com/nandika/lyceum"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedRunner wraps a StreamingRunner to emit OTEL lifecycle spans, metrics,
// and logs. The wrapper creates a parent span for each run that contains all
// inner operations (stage executions, LLM calls, tool executions) as child
// spans via context propagation.
type ObservedRunner struct {
	inner lyceum.StreamingRunner
	inst  *Instruments
}

// WrapRunner returns an instrumented runner that emits lifecycle telemetry.
func WrapRunner(inner lyceum.StreamingRunner, inst *Instruments) *ObservedRunner {
	return &ObservedRunner{inner: inner, inst: inst}
}

// RunStream wraps the inner runner's RunStream, emitting a run.execute span
// that serves as the parent for all inner operations. Stage completions are
// counted by watching the event stream on its way to the caller.
func (o *ObservedRunner) RunStream(ctx context.Context, topic string, ch chan<- lyceum.StreamEvent) (lyceum.RunState, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "run.execute", trace.WithAttributes(
		AttrRunTopic.String(topic),
	))
	defer span.End()
	start := time.Now()

	span.AddEvent("run.started")

	// Forward events through wrappedCh to count stage completions.
	// wrappedCh is buffered at least as large as ch so the inner runner
	// never blocks on a send the caller has not drained yet.
	bufSize := max(cap(ch), 64)
	wrappedCh := make(chan lyceum.StreamEvent, bufSize)
	stages := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for ev := range wrappedCh {
			if ev.Type == lyceum.EventStageFinish {
				stages++
				o.inst.StageCompletions.Add(ctx, 1, metric.WithAttributes(
					AttrStageName.String(ev.Name),
				))
			}
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	state, err := o.inner.RunStream(ctx, topic, wrappedCh)
	<-done // wait for goroutine to finish before reading stages

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"

	if ctx.Err() != nil && err != nil {
		status = "cancelled"
		span.AddEvent("run.cancelled")
		span.SetStatus(codes.Error, "cancelled")
	} else if err != nil {
		status = "error"
		span.AddEvent("run.failed", trace.WithAttributes(
			attribute.String("error", err.Error()),
		))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.AddEvent("run.completed")
	}

	span.SetAttributes(
		AttrRunID.String(state.ID),
		AttrRunStatus.String(status),
		AttrRunStages.Int(stages),
		AttrTokensInput.Int(state.Usage.InputTokens),
		AttrTokensOutput.Int(state.Usage.OutputTokens),
	)

	// Metrics
	o.inst.RunExecutions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
	o.inst.RunDuration.Record(ctx, durationMs)

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("run completed"))
	rec.AddAttributes(
		otellog.String("run.id", state.ID),
		otellog.String("run.topic", topic),
		otellog.String("run.status", status),
		otellog.Int("run.stages", stages),
		otellog.Int("tokens.input", state.Usage.InputTokens),
		otellog.Int("tokens.output", state.Usage.OutputTokens),
		otellog.Float64("duration_ms", durationMs),
	)
	o.inst.Logger.Emit(ctx, rec)

	return state, err
}

// compile-time check
var _ lyceum.StreamingRunner = (*ObservedRunner)(nil)
