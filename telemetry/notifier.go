package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	oteltrace "go.opentelemetry.io/otel/trace"

	"nfviz.dev/core/notify"
)

// Telemetry records run and step lifecycle as metrics, with one span per
// run carrying an event for every finished step.
var _ notify.Notifier = &Telemetry{}

func (t *Telemetry) RunStarted(ctx context.Context, run notify.Run) {
	t.runsStarted.Add(ctx, 1)
	t.runsActive.Add(ctx, 1)

	_, span := t.tracer.Start(context.WithoutCancel(ctx), "run",
		oteltrace.WithTimestamp(run.Started),
		oteltrace.WithAttributes(attribute.String("run.id", run.ID)),
	)

	t.mu.Lock()
	t.runs[run.ID] = span
	t.mu.Unlock()
}

func (t *Telemetry) StepFinished(ctx context.Context, res notify.StepResult) {
	attrs := []attribute.KeyValue{
		attribute.String("step", res.Step),
		attribute.String("status", res.Status.String()),
		attribute.Bool("aborted", res.Aborted),
	}
	t.steps.Add(ctx, 1, otelmetric.WithAttributes(attrs...))
	t.stepDuration.Record(ctx, res.Duration.Seconds(), otelmetric.WithAttributes(attribute.String("step", res.Step)))

	if span := t.span(res.RunID, false); span != nil {
		span.AddEvent("step finished", oteltrace.WithAttributes(attrs...))
	}
}

func (t *Telemetry) MonitoringStarted(ctx context.Context, run notify.Run) {
	if span := t.span(run.ID, false); span != nil {
		span.AddEvent("monitoring started")
	}
}

func (t *Telemetry) PipelineCompleted(ctx context.Context, run notify.Run) {
	t.pipelines.Add(ctx, 1)
}

// RunFinished only counts runs that were reported as started.
func (t *Telemetry) RunFinished(ctx context.Context, run notify.Run) {
	span := t.span(run.ID, true)
	if span == nil {
		return
	}
	t.runsActive.Add(ctx, -1)
	t.runsFinished.Add(ctx, 1, otelmetric.WithAttributes(attribute.String("outcome", run.Outcome)))

	span.SetAttributes(attribute.String("run.outcome", run.Outcome))
	if run.Outcome == "failed" {
		span.SetStatus(codes.Error, "a step failed")
	}
	span.End(oteltrace.WithTimestamp(run.Finished))
}

func (t *Telemetry) span(runID string, remove bool) oteltrace.Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	span, ok := t.runs[runID]
	if !ok {
		return nil
	}
	if remove {
		delete(t.runs, runID)
	}
	return span
}
