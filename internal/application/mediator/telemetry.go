package mediator

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/sykepenger/spesialist/internal/domain/event"
	"github.com/sykepenger/spesialist/internal/domain/workflow"
)

const instrumentationName = "github.com/sykepenger/spesialist/internal/application/mediator"

type instruments struct {
	tracer   trace.Tracer
	passes   metric.Int64Counter
	duration metric.Float64Histogram
}

func newInstruments(tp trace.TracerProvider, mp metric.MeterProvider) (*instruments, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	passes, err := meter.Int64Counter("spesialist.context.passes",
		metric.WithDescription("Command chain passes by kind and resulting state"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("spesialist.context.duration_ms",
		metric.WithDescription("Duration of a command chain pass"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &instruments{
		tracer:   tp.Tracer(instrumentationName),
		passes:   passes,
		duration: duration,
	}, nil
}

func (i *instruments) record(ctx context.Context, kind event.Kind, state workflow.State, started time.Time) {
	i.passes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(kind)),
		attribute.String("state", string(state)),
	))
	i.duration.Record(ctx, float64(time.Since(started).Microseconds())/1000, metric.WithAttributes(
		attribute.String("kind", string(kind)),
	))
}
