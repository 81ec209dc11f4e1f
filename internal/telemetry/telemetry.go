// Package telemetry wraps supervisor operations with one OTel span and,
// when built with a meter provider, one counter increment apiece.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the meter/tracer pair used to instrument supervisor
// operations.
type Telemetry struct {
	tracer trace.Tracer
	ops    metric.Int64Counter
}

// New builds a Telemetry from the given meter/tracer providers. Either
// may be nil: a nil tp yields a no-op tracer, and a nil mp means no
// counter is recorded.
func New(tp trace.TracerProvider, mp metric.MeterProvider) *Telemetry {
	if tp == nil {
		tp = trace.NewNoopTracerProvider()
	}
	tracer := tp.Tracer("github.com/helix-host/helix/internal/supervisor")

	t := &Telemetry{tracer: tracer}
	if mp != nil {
		meter := mp.Meter("github.com/helix-host/helix/internal/supervisor")
		if c, err := meter.Int64Counter("helix.supervisor.operations",
			metric.WithDescription("Count of supervisor operations by name and outcome.")); err == nil {
			t.ops = c
		}
	}
	return t
}

// Op runs fn inside a span named op, recording a counter increment
// tagged with the operation name and whether it succeeded.
func (t *Telemetry) Op(ctx context.Context, op, module string, fn func(context.Context) error) error {
	ctx, span := t.tracer.Start(ctx, "supervisor."+op, trace.WithAttributes(
		attribute.String("helix.module", module),
	))
	defer span.End()

	err := fn(ctx)

	if t.ops != nil {
		outcome := "ok"
		if err != nil {
			outcome = "error"
			span.RecordError(err)
		}
		t.ops.Add(ctx, 1,
			metric.WithAttributes(
				attribute.String("op", op),
				attribute.String("outcome", outcome),
			))
	}
	return err
}
