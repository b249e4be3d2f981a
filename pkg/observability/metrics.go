package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// meterProvider and the individual instruments are process-wide singletons,
// following the "long-lived singleton, injected, never an ambient global in
// business logic" rule: every other package reaches metrics only through the
// functions in this file, never by touching a global registry itself.
var (
	initOnce      sync.Once
	meterProvider *sdkmetric.MeterProvider
	promRegistry  *prometheus.Registry

	activeRemediations   metric.Int64UpDownCounter
	remediationAttempts  metric.Int64Counter
	remediationDuration  metric.Float64Histogram
)

// Init wires the OTel SDK to a Prometheus exporter/registry, the way
// itsneelabh-gomind/telemetry's Init sets up a global MeterProvider once at
// process start. Safe to call multiple times; only the first call takes
// effect.
func Init() *prometheus.Registry {
	initOnce.Do(func() {
		promRegistry = prometheus.NewRegistry()
		exporter, err := otelprom.New(otelprom.WithRegisterer(promRegistry))
		if err != nil {
			slog.Error("observability: failed to create prometheus exporter", "error", err)
			return
		}
		meterProvider = sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
		meter := meterProvider.Meter(tracerName)

		activeRemediations, err = meter.Int64UpDownCounter("active_remediations",
			metric.WithDescription("Remediations currently in flight"))
		if err != nil {
			slog.Error("observability: failed to create active_remediations gauge", "error", err)
		}
		remediationAttempts, err = meter.Int64Counter("remediation_attempts",
			metric.WithDescription("Remediation attempts by alert, lambda function and status"))
		if err != nil {
			slog.Error("observability: failed to create remediation_attempts counter", "error", err)
		}
		remediationDuration, err = meter.Float64Histogram("remediation_duration_seconds",
			metric.WithDescription("Remediation duration by lambda function and status"))
		if err != nil {
			slog.Error("observability: failed to create remediation_duration_seconds histogram", "error", err)
		}
	})
	return promRegistry
}

// Registry returns the Prometheus registry backing /metrics, initializing it
// on first use.
func Registry() *prometheus.Registry {
	if promRegistry == nil {
		return Init()
	}
	return promRegistry
}

// ActiveRemediationsInc increments the active_remediations gauge. Swallows
// any telemetry failure — never propagates to the caller.
func ActiveRemediationsInc() {
	safely(func() {
		if activeRemediations != nil {
			activeRemediations.Add(context.Background(), 1)
		}
	})
}

// ActiveRemediationsDec decrements the active_remediations gauge.
func ActiveRemediationsDec() {
	safely(func() {
		if activeRemediations != nil {
			activeRemediations.Add(context.Background(), -1)
		}
	})
}

// RecordRemediationAttempt increments remediation_attempts with the given
// labels.
func RecordRemediationAttempt(alertName, lambdaFunction, status string) {
	safely(func() {
		if remediationAttempts == nil {
			return
		}
		remediationAttempts.Add(context.Background(), 1, metric.WithAttributes(
			attr("alertname", alertName),
			attr("lambda_function", lambdaFunction),
			attr("status", status),
		))
	})
}

// RecordRemediationDuration records a remediation's duration in seconds.
func RecordRemediationDuration(lambdaFunction, status string, d time.Duration) {
	safely(func() {
		if remediationDuration == nil {
			return
		}
		remediationDuration.Record(context.Background(), d.Seconds(), metric.WithAttributes(
			attr("lambda_function", lambdaFunction),
			attr("status", status),
		))
	})
}

// RecordMetric emits an arbitrary named gauge-ish value with string labels —
// the general-purpose escape hatch named in the Observability Layer
// contract (record_metric(name, labels, value)) for call sites that don't
// warrant a dedicated instrument.
func RecordMetric(name string, labels map[string]string, value float64) {
	safely(func() {
		if meterProvider == nil {
			return
		}
		meter := meterProvider.Meter(tracerName)
		h, err := meter.Float64Histogram(name)
		if err != nil {
			slog.Warn("observability: RecordMetric failed to create instrument", "name", name, "error", err)
			return
		}
		kvs := make([]attribute.KeyValue, 0, len(labels))
		for k, v := range labels {
			kvs = append(kvs, attr(k, v))
		}
		h.Record(context.Background(), value, metric.WithAttributes(kvs...))
	})
}

func safely(f func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("observability: telemetry call recovered from panic", "recover", r)
		}
	}()
	f()
}

// Now and Since exist so call sites never import "time" just to time a
// remediation span; kept here so a future swap to a monotonic clock source
// touches one file.
func Now() time.Time              { return time.Now() }
func Since(t time.Time) time.Duration { return time.Since(t) }

// ToFloat64 reads the current value of a prometheus counter/gauge metric —
// used only by tests, mirroring jordigilh-kubernaut's
// prometheus/client_golang/prometheus/testutil usage pattern without
// pulling in the testutil subpackage for a single helper.
func ToFloat64(m prometheus.Metric) float64 {
	var pb dto.Metric
	if err := m.Write(&pb); err != nil {
		return 0
	}
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	default:
		return 0
	}
}
