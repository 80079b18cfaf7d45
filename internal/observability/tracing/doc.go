// Package tracing provides OpenTelemetry tracing integration.
//
// It exposes the application tracer, a span helper used around each poll
// cycle, and HTTP middleware that extracts W3C trace context from incoming
// requests.
//
// Example usage:
//
//	import "notifsync/internal/observability/tracing"
//
//	func main() {
//	    shutdown := tracing.Init()
//	    defer shutdown(context.Background())
//	}
//
//	func runPoll(ctx context.Context) {
//	    ctx, span := tracing.StartSpan(ctx, "sync.poll")
//	    defer span.End()
//	    // ... poll ...
//	}
package tracing
