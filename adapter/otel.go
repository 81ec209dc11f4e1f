package adapter

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// OTelAdapter exposes helix's telemetry to callers that only need to
// record an ad-hoc metric or span outside a supervisor operation (for
// example, from the control CLI or a health check).
type OTelAdapter interface {
	RecordMetric(ctx context.Context, name string, value float64)
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
}

// TelemetryOTelAdapter is the production OTelAdapter, backed by the
// tracer and meter providers passed to NewTelemetryOTelAdapter.
type TelemetryOTelAdapter struct {
	tracer  trace.Tracer
	counter metric.Float64Counter
}

// NewTelemetryOTelAdapter builds an adapter from raw OTel providers,
// mirroring the construction internal/telemetry.New does for the
// supervisor's own instrumentation.
func NewTelemetryOTelAdapter(tp trace.TracerProvider, mp metric.MeterProvider) *TelemetryOTelAdapter {
	if tp == nil {
		tp = trace.NewNoopTracerProvider()
	}
	a := &TelemetryOTelAdapter{tracer: tp.Tracer("github.com/helix-host/helix/adapter")}
	if mp != nil {
		if c, err := mp.Meter("github.com/helix-host/helix/adapter").Float64Counter("helix.adapter.metrics"); err == nil {
			a.counter = c
		}
	}
	return a
}

// RecordMetric increments the adapter's counter by value, tagged with name.
func (a *TelemetryOTelAdapter) RecordMetric(ctx context.Context, name string, value float64) {
	if a.counter == nil {
		return
	}
	a.counter.Add(ctx, value, metric.WithAttributes(attribute.String("name", name)))
}

// StartSpan opens a span named name under the adapter's tracer.
func (a *TelemetryOTelAdapter) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return a.tracer.Start(ctx, name)
}
