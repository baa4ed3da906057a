// Package telemetry defines the logging, metrics, and tracing interfaces
// consumed by the scheduler, reasoner dispatch, and solver facade. The core
// never commits to a concrete backend; hosts wire a Logger/Metrics/Tracer
// triple through roma.Options, defaulting to no-ops when unset.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log messages keyed by alternating key/value pairs,
	// mirroring the convention used throughout the scheduler for node-transition
	// and dispatch logging.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters, timers, and gauges. The scheduler records a
	// dispatch count ("roma.dispatch.count") and dispatch duration
	// ("roma.dispatch.duration") per reasoner call; it records no other
	// metrics.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer creates spans. The scheduler accepts a Tracer in its Config
	// but does not itself start any spans.
	Tracer interface {
		// Start begins a new span and returns the derived context plus the span handle.
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		// Span retrieves the current span from ctx, or a no-op span if none is active.
		Span(ctx context.Context) Span
	}

	// Span is the handle returned by Tracer.Start/Span.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)
