// Package telemetry defines the logging, metrics, and tracing interfaces
// consumed throughout the gateway, plus Clue/OTEL-backed and no-op
// implementations. Every request produces a hierarchical span tree shaped
// run -> cloud_api_invoke -> api_invoke -> model_call. When the request
// carries tools, each tool-loop iteration opens a tools span between
// api_invoke and that iteration's model_call. No per-provider span is
// opened. SpanNames below names each level so callers don't repeat string
// literals.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// SpanNames enumerates the fixed hierarchy of span names produced for every
// request.
var SpanNames = struct {
	Run            string
	CloudAPIInvoke string
	APIInvoke      string
	ModelCall      string
	Tools          string
}{
	Run:            "run",
	CloudAPIInvoke: "cloud_api_invoke",
	APIInvoke:      "api_invoke",
	ModelCall:      "model_call",
	Tools:          "tools",
}

// Logger captures structured logging used throughout the gateway.
// Implementations typically delegate to goa.design/clue/log but the
// interface is intentionally small so tests can provide lightweight stubs.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter and histogram helpers for gateway instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so gateway code stays agnostic of the
// underlying OpenTelemetry provider.
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}
