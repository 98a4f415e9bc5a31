package telemetry

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
)

// Configures the global tracer provider with the exporter from the config.
// The returned provider must be shut down to flush the pending spans.
func SetupTelemetry(ctx context.Context, config Config) (*tracesdk.TracerProvider, error) {
	res, err := NewResource(config.ID)
	if err != nil {
		return nil, err
	}

	var exp tracesdk.SpanExporter
	if config.OTLP.Host != "" {
		exp, err = NewOTLPExporter(ctx, config.OTLP)
	} else {
		exp, err = NewJaegerExporter(config.JaegerURL)
	}

	if err != nil {
		return nil, err
	}

	tp := NewTracerProvider(exp, res)

	otel.SetTracerProvider(tp)
	tracer = otel.Tracer(PACKAGE)

	otel.SetTextMapPropagator(propagation.TraceContext{})

	return tp, nil
}

// Creates a trace provider that batches every span to the exporter and tags it with our resource.
func NewTracerProvider(exp tracesdk.SpanExporter, res *resource.Resource) *tracesdk.TracerProvider {
	return tracesdk.NewTracerProvider(
		tracesdk.WithSampler(tracesdk.AlwaysSample()),
		tracesdk.WithBatcher(exp),
		tracesdk.WithResource(res),
	)
}

func NewJaegerExporter(url string) (*jaeger.Exporter, error) {
	exp, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(url)))
	if err != nil {
		return nil, fmt.Errorf("failed to create Jaeger exporter: %w", err)
	}

	return exp, nil
}

func NewOTLPExporter(ctx context.Context, config OTLP) (*otlptrace.Exporter, error) {
	options := []otlptracehttp.Option{otlptracehttp.WithEndpoint(config.Host)}
	if !config.Secure {
		options = append(options, otlptracehttp.WithInsecure())
	}

	exp, err := otlptrace.New(ctx, otlptracehttp.NewClient(options...))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	return exp, nil
}

// Creates a new resource to identify the service instance.
func NewResource(id string) (*resource.Resource, error) {
	if id == "" {
		random, err := uuid.NewRandom()
		if err != nil {
			return nil, err
		}

		id = random.String()
	}

	return resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(PACKAGE),
		attribute.String("ID", id),
	), nil
}
