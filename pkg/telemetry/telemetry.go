package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const PACKAGE = "rivulet"

var tracer = otel.Tracer(PACKAGE)

// Telemetry is a span together with the context that children are created from.
// A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	span    trace.Span
	context context.Context //nolint:containedctx
}

func NewTelemetry(ctx context.Context, name string, attributes ...attribute.KeyValue) *Telemetry {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(attributes...))

	return &Telemetry{
		span:    span,
		context: ctx,
	}
}

func (t *Telemetry) CreateChild(name string, attributes ...attribute.KeyValue) *Telemetry {
	if t == nil {
		return NewTelemetry(context.Background(), name, attributes...)
	}

	return NewTelemetry(t.context, name, attributes...)
}

func (t *Telemetry) AddEvent(text string, attributes ...attribute.KeyValue) {
	if t == nil {
		return
	}

	t.span.AddEvent(text, trace.WithAttributes(attributes...))
}

func (t *Telemetry) SetAttributes(attributes ...attribute.KeyValue) {
	if t == nil {
		return
	}

	t.span.SetAttributes(attributes...)
}

func (t *Telemetry) AddError(err error) {
	if t == nil {
		return
	}

	t.span.RecordError(err)
}

// Marks the span as failed.
func (t *Telemetry) Fail(err error) {
	if t == nil {
		return
	}

	t.span.SetStatus(codes.Error, err.Error())
	t.AddError(err)
}

func (t *Telemetry) End() {
	if t == nil {
		return
	}

	t.span.End()
}
