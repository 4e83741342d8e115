// Package metrics wires the cross-cutting observability the spec's
// "metrics.py" supplement calls for (SPEC_FULL.md §3): a small counter
// facade plus span-per-message-processing / span-per-digest-run tracing,
// exposed through go.opentelemetry.io/otel rather than a bespoke registry.
package metrics

import (
	"context"
	"fmt"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// SetupTracing builds and registers a TracerProvider exporting spans over
// OTLP. The wire protocol follows the standard OTEL_EXPORTER_OTLP_PROTOCOL
// env var ("grpc", the default, or "http/protobuf"); endpoint/headers/etc.
// are read by the exporter constructors themselves from the rest of the
// standard OTEL_EXPORTER_OTLP_* env vars. Returns a shutdown func that
// flushes pending spans and must be called once before process exit.
func SetupTracing(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	exp, err := newTraceExporter(ctx)
	if err != nil {
		return nil, fmt.Errorf("metrics: build trace exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: build resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	return tp.Shutdown, nil
}

func newTraceExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if os.Getenv("OTEL_EXPORTER_OTLP_PROTOCOL") == "http/protobuf" {
		return otlptracehttp.New(ctx)
	}
	client := otlptracegrpc.NewClient()
	return otlptrace.New(ctx, client)
}
