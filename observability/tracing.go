package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceConfig holds configuration for the TraceProvider setup.
type TraceConfig struct {
	// Endpoint is the OTLP HTTP endpoint (e.g., "localhost:4318").
	Endpoint string
	// ServiceName is the service name reported in traces.
	ServiceName string
	// ServiceVersion is the optional service version.
	ServiceVersion string
	// Insecure disables TLS for the OTLP exporter.
	Insecure bool
	// SampleRate controls the trace sampling ratio (0.0 to 1.0). 0 means default (always sample).
	SampleRate float64
}

// DefaultTraceConfig returns a TraceConfig with sensible defaults.
func DefaultTraceConfig() TraceConfig {
	return TraceConfig{
		Endpoint:    "localhost:4318",
		ServiceName: "n8n-copilot",
		Insecure:    true,
		SampleRate:  1.0,
	}
}

// TraceProvider wraps an OpenTelemetry TracerProvider and handles lifecycle.
// Components that trace themselves pick it up through the global provider,
// so installing one at boot is enough.
type TraceProvider struct {
	tp *sdktrace.TracerProvider
}

// NewTraceProvider creates a TracerProvider from the given config and sets
// it as the global provider.
func NewTraceProvider(ctx context.Context, cfg TraceConfig) (*TraceProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	attrs := []resource.Option{
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)),
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, resource.WithAttributes(semconv.ServiceVersionKey.String(cfg.ServiceVersion)))
	}

	res, err := resource.New(ctx, attrs...)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	var sampler sdktrace.Sampler
	switch {
	case cfg.SampleRate <= 0:
		sampler = sdktrace.AlwaysSample()
	case cfg.SampleRate >= 1.0:
		sampler = sdktrace.AlwaysSample()
	default:
		sampler = sdktrace.TraceIDRatioBased(cfg.SampleRate)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TraceProvider{tp: tp}, nil
}

// Tracer returns a tracer named for one co-pilot component, e.g.
// Tracer("validation") yields "copilot.validation".
func (p *TraceProvider) Tracer(component string) trace.Tracer {
	return p.tp.Tracer("copilot." + component)
}

// TracerProvider returns the underlying SDK TracerProvider.
func (p *TraceProvider) TracerProvider() *sdktrace.TracerProvider {
	return p.tp
}

// Shutdown gracefully shuts down the tracer provider, flushing pending spans.
func (p *TraceProvider) Shutdown(ctx context.Context) error {
	if p.tp != nil {
		return p.tp.Shutdown(ctx)
	}
	return nil
}

// OpTracer provides convenience methods for creating spans around
// coordinator operations. The validation pipeline traces its own layers;
// this covers everything above it.
type OpTracer struct {
	tracer trace.Tracer
}

// NewOpTracer creates an OpTracer. If tracer is nil, the global tracer
// provider is used.
func NewOpTracer(tracer trace.Tracer) *OpTracer {
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer("copilot.coordinator")
	}
	return &OpTracer{tracer: tracer}
}

// StartOp begins a span for one coordinator operation.
func (o *OpTracer) StartOp(ctx context.Context, op string) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "copilot.op."+op,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("copilot.op", op),
		),
	)
}

// RecordError records an error on the given span and sets the span status.
func (o *OpTracer) RecordError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSuccess marks a span as successful.
func (o *OpTracer) SetSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}
