// Package observability provides observability infrastructure for the sync
// worker: structured logging and OpenTelemetry tracing.
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - tracing: OpenTelemetry tracer setup, poll spans, and HTTP middleware
package observability
