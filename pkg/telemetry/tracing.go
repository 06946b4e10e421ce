package telemetry

import (
	"context"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Options controls tracer provider construction.
type Options struct {
	ServiceName    string
	ServiceVersion string
	Endpoint       string
	Insecure       bool
	SampleRatio    float64
	LogSpans       bool
}

// SetupTracing configures an OpenTelemetry tracer provider with optional OTLP exporter
// and installs global propagators. Returns the provider so callers can shut it down.
func SetupTracing(ctx context.Context, opts Options) (*sdktrace.TracerProvider, error) {
	ratio := opts.SampleRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 1
	}

	sampler := sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(opts.ServiceName),
		semconv.ServiceVersion(opts.ServiceVersion),
	)

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
	}

	if opts.Endpoint != "" {
		clientOpts := []otlptracehttp.Option{}
		// The OTLP HTTP exporter expects an endpoint without scheme by default. If a scheme is provided,
		// strip it and mark the exporter as insecure when using HTTP.
		ep := opts.Endpoint
		insecure := opts.Insecure
		if strings.HasPrefix(ep, "https://") {
			ep = strings.TrimPrefix(ep, "https://")
		} else if strings.HasPrefix(ep, "http://") {
			ep = strings.TrimPrefix(ep, "http://")
			insecure = true
		}
		if ep == "" {
			return nil, errors.New("invalid OTLP endpoint")
		}
		clientOpts = append(clientOpts, otlptracehttp.WithEndpoint(ep))
		if insecure {
			clientOpts = append(clientOpts, otlptracehttp.WithInsecure())
		}

		exporter, err := otlptracehttp.New(ctx, clientOpts...)
		if err != nil {
			return nil, err
		}
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	if opts.LogSpans {
		providerOpts = append(providerOpts,
			sdktrace.WithSpanProcessor(sdktrace.NewSimpleSpanProcessor(newLoggingExporter())))
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		),
	)

	return provider, nil
}
