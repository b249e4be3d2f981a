package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies this module's spans in the OTel pipeline.
const tracerName = "github.com/jordigilh/agent-sre"

func tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// TraceContext carries the trace/span identifiers extracted from ctx for log
// correlation, bridging OpenTelemetry spans to structured log fields —
// mirrors itsneelabh-gomind/telemetry.GetTraceContext.
type TraceContext struct {
	TraceID string
	SpanID  string
	Sampled bool
}

// GetTraceContext extracts the active span's identifiers from ctx. Returns
// zero values if ctx carries no valid span.
func GetTraceContext(ctx context.Context) TraceContext {
	if ctx == nil {
		return TraceContext{}
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.IsValid() {
		return TraceContext{}
	}
	return TraceContext{
		TraceID: sc.TraceID().String(),
		SpanID:  sc.SpanID().String(),
		Sampled: sc.IsSampled(),
	}
}

// Trace starts a span named operationName with the given attributes and
// returns the derived context plus a function that ends the span. Any
// telemetry failure (e.g. a misbehaving exporter) never reaches the caller —
// the span recorder swallows its own errors, matching the observability
// contract's "telemetry errors never propagate" rule.
func Trace(ctx context.Context, operationName string, attrs Fields) (context.Context, func(err error)) {
	opts := []trace.SpanStartOption{}
	if len(attrs) > 0 {
		kvs := make([]attribute.KeyValue, 0, len(attrs))
		for k, v := range attrs {
			kvs = append(kvs, attribute.String(k, toString(v)))
		}
		opts = append(opts, trace.WithAttributes(kvs...))
	}

	spanCtx, span := tracer().Start(ctx, operationName, opts...)
	end := func(err error) {
		defer func() {
			// Never let an exporter/recorder panic propagate to callers.
			if r := recover(); r != nil {
				slog.Warn("observability: span end panicked", "operation", operationName, "recover", r)
			}
		}()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
	return spanCtx, end
}

// TraceRemediation starts a span for a single remediation attempt, wiring in
// the gauge/counter/histogram side effects required by the Observability
// Layer contract (§4.1): increments active_remediations on entry, decrements
// on exit, and records remediation_attempts / remediation_duration_seconds.
func TraceRemediation(ctx context.Context, alertName, lambdaFunction, correlationID string) (context.Context, func(status string)) {
	ActiveRemediationsInc()
	start := Now()

	spanCtx, endSpan := Trace(ctx, "trace_remediation", NewFields().
		AlertName(alertName).
		CorrelationID(correlationID).
		Component("remediation"))
	spanCtx = context.WithValue(spanCtx, lambdaFunctionCtxKey{}, lambdaFunction)

	return spanCtx, func(status string) {
		ActiveRemediationsDec()
		RecordRemediationAttempt(alertName, lambdaFunction, status)
		RecordRemediationDuration(lambdaFunction, status, Since(start))
		var err error
		if status == "error" {
			err = errStatus(status)
		}
		endSpan(err)
	}
}

type lambdaFunctionCtxKey struct{}

func errStatus(status string) error {
	return errors.New(status)
}

func toString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
