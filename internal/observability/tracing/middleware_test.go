package tracing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupExporter installs an in-memory span exporter and rebinds the global
// tracer to it. Cleanup restores a fresh provider so tests stay isolated.
func setupExporter(t *testing.T) (*tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	t.Helper()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	otel.SetTracerProvider(tp)
	tracer = otel.Tracer("notifsync")

	t.Cleanup(func() {
		otel.SetTracerProvider(sdktrace.NewTracerProvider())
		tracer = otel.Tracer("notifsync")
	})

	return exporter, tp
}

// serve runs one request through the middleware-wrapped handler.
func serve(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	Middleware(handler).ServeHTTP(rr, req)
	return rr
}

func statusHandler(code int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	})
}

func TestMiddleware_CreatesSpanWithAttributes(t *testing.T) {
	exporter, tp := setupExporter(t)

	serve(statusHandler(http.StatusOK), httptest.NewRequest("GET", "/test", nil))
	_ = tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	span := spans[0]
	if span.Name != "GET /test" {
		t.Errorf("expected span name 'GET /test', got %q", span.Name)
	}

	want := map[string]string{
		"http.method":      "GET",
		"http.path":        "/test",
		"http.status_code": "200",
	}
	for _, attr := range span.Attributes {
		if expected, ok := want[string(attr.Key)]; ok {
			if attr.Value.Emit() != expected {
				t.Errorf("attribute %s = %s, want %s", attr.Key, attr.Value.Emit(), expected)
			}
			delete(want, string(attr.Key))
		}
	}
	for key := range want {
		t.Errorf("attribute %s not found on span", key)
	}
}

func TestMiddleware_AddsTraceIDToResponse(t *testing.T) {
	setupExporter(t)

	rr := serve(statusHandler(http.StatusOK), httptest.NewRequest("GET", "/test", nil))

	traceID := rr.Header().Get("X-Trace-Id")
	if traceID == "" {
		t.Fatal("X-Trace-Id header not found in response")
	}
	if len(traceID) != 32 {
		t.Errorf("expected trace ID length 32, got %d", len(traceID))
	}
}

func TestMiddleware_PropagatesTraceContext(t *testing.T) {
	exporter, tp := setupExporter(t)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() {
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator())
	})

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	serve(statusHandler(http.StatusOK), req)
	_ = tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	expected := "4bf92f3577b34da6a3ce929d0e0e4736"
	if got := spans[0].SpanContext.TraceID().String(); got != expected {
		t.Errorf("expected trace ID %s, got %s", expected, got)
	}
}

func TestMiddleware_MarksErrorSpansFor5xx(t *testing.T) {
	exporter, tp := setupExporter(t)

	serve(statusHandler(http.StatusInternalServerError), httptest.NewRequest("GET", "/error", nil))
	_ = tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	found := false
	for _, attr := range spans[0].Attributes {
		if attr.Key == "error" && attr.Value.AsBool() {
			found = true
		}
	}
	if !found {
		t.Error("expected error attribute for 5xx response")
	}
}

func TestMiddleware_NoErrorAttributeFor4xx(t *testing.T) {
	exporter, tp := setupExporter(t)

	serve(statusHandler(http.StatusNotFound), httptest.NewRequest("GET", "/notfound", nil))
	_ = tp.ForceFlush(context.Background())

	spans := exporter.GetSpans()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}

	for _, attr := range spans[0].Attributes {
		if attr.Key == "error" {
			t.Error("unexpected error attribute for 4xx response")
		}
	}
}

func TestStatusRecorder_CapturesStatusCode(t *testing.T) {
	recorder := newStatusRecorder(httptest.NewRecorder())

	if recorder.status != http.StatusOK {
		t.Errorf("expected default status code 200, got %d", recorder.status)
	}

	recorder.WriteHeader(http.StatusCreated)

	if recorder.status != http.StatusCreated {
		t.Errorf("expected status code 201, got %d", recorder.status)
	}
}
