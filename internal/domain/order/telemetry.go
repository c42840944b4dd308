package order

import (
	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/xenking/order-service/internal/domain/order"

// Telemetry holds the providers order components are instrumented with.
// Zero fields fall back to the global providers.
type Telemetry struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

func (t Telemetry) tracer() trace.Tracer {
	tp := t.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

func (t Telemetry) meter() metric.Meter {
	mp := t.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	return mp.Meter(instrumentationName)
}

func (t Telemetry) counter(name, desc string) (metric.Int64Counter, error) {
	c, err := t.meter().Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return nil, errors.Wrapf(err, "create %s counter", name)
	}
	return c, nil
}
