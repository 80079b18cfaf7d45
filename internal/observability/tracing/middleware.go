package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// statusRecorder wraps http.ResponseWriter to capture the status code
// written by the handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

// newStatusRecorder wraps w; the status defaults to 200 because handlers
// that never call WriteHeader implicitly respond 200.
func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// Middleware wraps an HTTP handler with OpenTelemetry server spans.
//
// Incoming W3C trace context headers are honored, so a poll triggered by
// an upstream caller joins the caller's trace. The span's trace ID is
// echoed back in the X-Trace-Id response header for client-side
// correlation, and the request method, path, and final status code are
// recorded as span attributes. A 5xx status marks the span as an error.
//
// Example usage:
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("/status", handleStatus)
//	server := &http.Server{Handler: tracing.Middleware(mux)}
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(
			r.Context(),
			propagation.HeaderCarrier(r.Header),
		)

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		w.Header().Set("X-Trace-Id", span.SpanContext().TraceID().String())

		recorder := newStatusRecorder(w)
		next.ServeHTTP(recorder, r.WithContext(ctx))

		span.SetAttributes(
			attribute.Int("http.status_code", recorder.status),
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		if recorder.status >= 500 {
			span.SetAttributes(attribute.Bool("error", true))
		}
	})
}
