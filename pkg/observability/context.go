package observability

import (
	"context"
	"log/slog"
)

// boundFieldsKey stores the standing Fields attached by BindContext so that
// Logger(ctx) can append trace/span ids lazily without re-threading them
// through every call site.
type boundFieldsKey struct{}

// BindOptions names the identifiers a bound context carries for the
// lifetime of one causal chain of work.
type BindOptions struct {
	CorrelationID string
	EventID       string
	AlertName     string
}

// BindContext attaches correlation_id/event_id/alertname to ctx so that
// every structured log record emitted through Logger(ctx) automatically
// includes them, plus the active span's trace_id/span_id if one exists.
func BindContext(ctx context.Context, opts BindOptions) context.Context {
	fields := NewFields().
		CorrelationID(opts.CorrelationID).
		AlertName(opts.AlertName)
	if opts.EventID != "" {
		fields["event_id"] = opts.EventID
	}
	return context.WithValue(ctx, boundFieldsKey{}, fields)
}

// Logger returns a *slog.Logger pre-populated with the fields bound via
// BindContext plus the current span's trace_id/span_id, matching the
// observability contract: "All structured log records emitted inside a
// bound context automatically include correlation_id, trace_id, span_id,
// alertname."
func Logger(ctx context.Context) *slog.Logger {
	logger := slog.Default()

	if fields, ok := ctx.Value(boundFieldsKey{}).(Fields); ok {
		logger = logger.With(fields.Args()...)
	}

	tc := GetTraceContext(ctx)
	if tc.TraceID != "" {
		logger = logger.With("trace_id", tc.TraceID, "span_id", tc.SpanID)
	}
	return logger
}
