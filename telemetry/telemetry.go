package telemetry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type Telemetry struct {
	tp *trace.TracerProvider
	mp *metric.MeterProvider

	meter  otelmetric.Meter
	tracer oteltrace.Tracer

	instruments

	mu sync.Mutex
	// open run spans by session id
	runs map[string]oteltrace.Span
}

type instruments struct {
	runsStarted  otelmetric.Int64Counter
	runsFinished otelmetric.Int64Counter
	runsActive   otelmetric.Int64UpDownCounter
	steps        otelmetric.Int64Counter
	stepDuration otelmetric.Float64Histogram
	pipelines    otelmetric.Int64Counter
}

func Resource(serviceName, serviceVersion string) *resource.Resource {
	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	)
}

// NewTelemetry exports to stderr in dev mode and over OTLP gRPC otherwise,
// and installs the providers as the otel globals.
func NewTelemetry(ctx context.Context, serviceName, serviceVersion string, isDev bool) (*Telemetry, error) {
	e := otlpExporters()
	if isDev {
		e = devExporters()
	}
	return newTelemetry(ctx, e, serviceName, serviceVersion)
}

func newTelemetry(ctx context.Context, e exporters, serviceName, serviceVersion string) (*Telemetry, error) {
	tp, mp, err := e.providers(ctx, serviceName, serviceVersion)
	if err != nil {
		return nil, err
	}

	t, err := New(tp, mp, serviceName, serviceVersion)
	if err != nil {
		return nil, errors.Join(err, tp.Shutdown(ctx), mp.Shutdown(ctx))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	return t, nil
}

// New wraps already configured providers.
func New(tp *trace.TracerProvider, mp *metric.MeterProvider, serviceName, serviceVersion string) (*Telemetry, error) {
	t := &Telemetry{
		tp: tp,
		mp: mp,

		meter:  mp.Meter(serviceName),
		tracer: tp.Tracer(serviceName, oteltrace.WithInstrumentationVersion(serviceVersion)),

		runs: make(map[string]oteltrace.Span),
	}
	if err := t.initInstruments(); err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Telemetry) initInstruments() error {
	var err error
	m := t.meter

	if t.runsStarted, err = m.Int64Counter("runs_started",
		otelmetric.WithDescription("Number of runs started."),
	); err != nil {
		return fmt.Errorf("unable to create runs_started counter: %w", err)
	}
	if t.runsFinished, err = m.Int64Counter("runs_finished",
		otelmetric.WithDescription("Number of runs finished, by outcome."),
	); err != nil {
		return fmt.Errorf("unable to create runs_finished counter: %w", err)
	}
	if t.runsActive, err = m.Int64UpDownCounter("runs_active",
		otelmetric.WithDescription("Number of runs currently in progress."),
		otelmetric.WithUnit("1"),
	); err != nil {
		return fmt.Errorf("unable to create runs_active counter: %w", err)
	}
	if t.steps, err = m.Int64Counter("steps_finished",
		otelmetric.WithDescription("Number of streamed steps finished, by step and status."),
	); err != nil {
		return fmt.Errorf("unable to create steps_finished counter: %w", err)
	}
	if t.stepDuration, err = m.Float64Histogram("step_duration_seconds",
		otelmetric.WithDescription("Wall time of streamed steps."),
		otelmetric.WithUnit("s"),
	); err != nil {
		return fmt.Errorf("unable to create step_duration_seconds histogram: %w", err)
	}
	if t.pipelines, err = m.Int64Counter("pipelines_completed",
		otelmetric.WithDescription("Number of externally run pipelines observed to complete."),
	); err != nil {
		return fmt.Errorf("unable to create pipelines_completed counter: %w", err)
	}
	return nil
}

// Shutdown flushes and stops both providers.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	for id, span := range t.runs {
		span.End()
		delete(t.runs, id)
	}
	t.mu.Unlock()

	return errors.Join(t.tp.Shutdown(ctx), t.mp.Shutdown(ctx))
}
