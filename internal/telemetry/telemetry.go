// Package telemetry provides an ambient, noop-by-default tracer used by
// the HTTP layer, the agent worker, and the MCP server to annotate request
// and turn spans. When no exporter is configured, every call is a no-op;
// wiring a real OTLP exporter is one functional option away.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an otel trace.Tracer; New substitutes the global noop
// tracer when no provider has been installed, following the same
// noop-substitution idiom used for ambient logging/metrics elsewhere in
// the stack this daemon is built from.
type Tracer struct {
	tracer trace.Tracer
}

// New returns a Tracer backed by the globally installed OpenTelemetry
// trace provider, or a noop tracer if none was installed (the default
// until Configure is called).
func New(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// Start begins a span. Callers must call the returned func to end it.
func (t *Tracer) Start(ctx context.Context, spanName string) (context.Context, func()) {
	if t == nil || t.tracer == nil {
		return ctx, func() {}
	}
	ctx, span := t.tracer.Start(ctx, spanName)
	return ctx, func() { span.End() }
}

// Exporter kind for Configure.
type ExporterKind string

const (
	ExporterNone ExporterKind = ""
	ExporterGRPC ExporterKind = "grpc"
	ExporterHTTP ExporterKind = "http"
)

// Configure installs a real OTLP-backed trace provider as the global
// provider, pointed at endpoint. Returns a shutdown func. Pass
// ExporterNone to leave tracing as a no-op (the default).
func Configure(ctx context.Context, kind ExporterKind, endpoint string) (shutdown func(context.Context) error, err error) {
	if kind == ExporterNone {
		return func(context.Context) error { return nil }, nil
	}

	var exporter sdktrace.SpanExporter
	switch kind {
	case ExporterGRPC:
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	case ExporterHTTP:
		exporter, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	}
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}
