package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/trace"
)

const (
	batchTimeout   = time.Second
	exportInterval = 10 * time.Second
)

// devOutput receives the stdout exporters' output in dev mode. Stdout
// itself is kept for the headless client's progress output.
var devOutput io.Writer = os.Stderr

// exporters builds the span and metric exporters a Telemetry ships to.
type exporters struct {
	spans   func(ctx context.Context) (trace.SpanExporter, error)
	metrics func(ctx context.Context) (metric.Exporter, error)
}

// devExporters pretty-prints to devOutput.
func devExporters() exporters {
	return exporters{
		spans: func(context.Context) (trace.SpanExporter, error) {
			return stdouttrace.New(stdouttrace.WithWriter(devOutput), stdouttrace.WithPrettyPrint())
		},
		metrics: func(context.Context) (metric.Exporter, error) {
			return stdoutmetric.New(stdoutmetric.WithWriter(devOutput))
		},
	}
}

// otlpExporters ship over gRPC; the endpoint comes from the standard
// OTEL_EXPORTER_OTLP_* environment variables.
func otlpExporters() exporters {
	return exporters{
		spans: func(ctx context.Context) (trace.SpanExporter, error) {
			return otlptracegrpc.New(ctx)
		},
		metrics: func(ctx context.Context) (metric.Exporter, error) {
			return otlpmetricgrpc.New(ctx)
		},
	}
}

// providers wires both exporters into providers. Nothing is left running
// when it fails.
func (e exporters) providers(ctx context.Context, serviceName, serviceVersion string) (*trace.TracerProvider, *metric.MeterProvider, error) {
	res := Resource(serviceName, serviceVersion)

	spans, err := e.spans(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(spans, trace.WithBatchTimeout(batchTimeout)),
		trace.WithResource(res),
	)

	metrics, err := e.metrics(ctx)
	if err != nil {
		tp.Shutdown(ctx)
		return nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}
	mp := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(metrics, metric.WithInterval(exportInterval))),
		metric.WithResource(res),
	)

	return tp, mp, nil
}
