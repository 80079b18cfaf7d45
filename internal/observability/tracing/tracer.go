package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer instance for the notifsync application.
var tracer = otel.Tracer("notifsync")

// GetTracer returns the global tracer for creating spans.
// This tracer can be used throughout the application to create new spans.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "operation-name")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}

// Init installs a tracer provider as the global OpenTelemetry provider and
// returns a shutdown function that flushes pending spans. Exporters are
// attached via the standard OTEL_* environment variables by the deployment;
// without one, spans stay in-process.
func Init() func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("notifsync")
	return tp.Shutdown
}

// StartSpan starts a span on the global tracer. It is a shorthand for
// GetTracer().Start used around each poll cycle.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}
