package obs

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// TracingConfig controls tracer provider initialisation.
type TracingConfig struct {
	ServiceName   string
	Endpoint      string
	Exporter      string
	SamplingRatio float64
	Environment   string
}

func (cfg TracingConfig) sampler() sdktrace.Sampler {
	ratio := cfg.SamplingRatio
	if ratio <= 0 {
		ratio = 1
	}
	return sdktrace.TraceIDRatioBased(ratio)
}

// InitTracer installs the global tracer provider (OTLP/HTTP exporter,
// ratio-based sampling) and returns its shutdown hook. Only the "otlp"
// exporter is supported; an empty exporter means otlp.
func InitTracer(ctx context.Context, cfg TracingConfig) (func(context.Context) error, error) {
	if name := strings.ToLower(strings.TrimSpace(cfg.Exporter)); name != "" && name != "otlp" {
		return nil, fmt.Errorf("unsupported tracing exporter: %s", name)
	}

	var exporterOpts []otlptracehttp.Option
	if strings.TrimSpace(cfg.Endpoint) != "" {
		exporterOpts = append(exporterOpts, otlptracehttp.WithEndpointURL(cfg.Endpoint))
	}
	exporter, err := otlptracehttp.New(ctx, exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithProcess(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.DeploymentEnvironmentKey.String(cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(cfg.sampler()),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return provider.Shutdown, nil
}
