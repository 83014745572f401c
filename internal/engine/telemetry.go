package engine

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/KilimcininKorOglu/vdx/internal/logging"
	"github.com/KilimcininKorOglu/vdx/internal/result"
)

const instrumentationName = "github.com/KilimcininKorOglu/vdx/internal/engine"

// telemetry holds the tracer and metric instruments of one engine.
type telemetry struct {
	tracer     trace.Tracer
	operations metric.Int64Counter
	duration   metric.Float64Histogram
}

func newTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) (*telemetry, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	t := &telemetry{tracer: tp.Tracer(instrumentationName)}
	var err error
	t.operations, err = meter.Int64Counter(
		"vdx.engine.operations",
		metric.WithDescription("Number of engine operations by operation and result code"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create operations counter: %w", err)
	}
	t.duration, err = meter.Float64Histogram(
		"vdx.engine.duration",
		metric.WithDescription("Engine operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return t, nil
}

// operation tracks one public engine call: its span, request-scoped
// logger and timing.
type operation struct {
	name  string
	dn    string
	start time.Time
	span  trace.Span
	log   logging.Logger
	tel   *telemetry
	ended bool
}

func (e *Engine) begin(ctx context.Context, name, dn string) (context.Context, *operation) {
	ctx, span := e.tel.tracer.Start(ctx, "vdx.engine."+name,
		trace.WithAttributes(
			attribute.String("vdx.op", name),
			attribute.String("vdx.dn", dn),
		),
	)
	requestID := logging.GenerateRequestID()
	span.SetAttributes(attribute.String("vdx.request_id", requestID))
	return ctx, &operation{
		name:  name,
		dn:    dn,
		start: time.Now(),
		span:  span,
		log:   e.log.WithRequestID(requestID).WithFields("op", name, "dn", dn),
		tel:   e.tel,
	}
}

// end records the outcome of the operation and returns err converted to
// a *result.Error. It is safe to call more than once; only the first
// call records.
func (o *operation) end(ctx context.Context, err error) error {
	rerr := result.From(o.name, o.dn, err)
	if o.ended {
		if rerr == nil {
			return nil
		}
		return rerr
	}
	o.ended = true

	code := result.CodeOf(err)
	elapsed := float64(time.Since(o.start).Microseconds()) / 1000
	attrs := metric.WithAttributes(
		attribute.String("op", o.name),
		attribute.String("code", code.String()),
	)
	o.tel.operations.Add(ctx, 1, attrs)
	o.tel.duration.Record(ctx, elapsed, attrs)

	o.span.SetAttributes(attribute.Int("vdx.code", int(code)))
	if rerr != nil {
		o.span.RecordError(rerr)
		o.span.SetStatus(codes.Error, code.String())
		if rerr.Kind == result.KindBackendFailure || rerr.Kind == result.KindResourceTimeout {
			o.log.Warn("operation failed", "code", code.String(), "error", rerr.Error(), "duration_ms", elapsed)
		} else {
			o.log.Debug("operation rejected", "code", code.String(), "error", rerr.Error(), "duration_ms", elapsed)
		}
	} else {
		o.span.SetStatus(codes.Ok, "")
		o.log.Debug("operation completed", "duration_ms", elapsed)
	}
	o.span.End()

	if rerr == nil {
		return nil
	}
	return rerr
}
