// Package telemetry sets up tracing for the execute/complete path: a
// claimed action or instance gets one span while a worker runs it
// (action.run, instance.drive), so a slow or failing row can be found in
// the trace backend. Span context is not carried between the actionworker
// and instanceworker processes.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry holds the tracer provider for one daemonflow process.
type Telemetry struct {
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
}

// Config controls whether and where traces are exported.
type Config struct {
	ServiceName    string
	JaegerEndpoint string
	TracingEnabled bool
}

// New builds a Telemetry. If cfg.TracingEnabled is false, Tracer() returns
// a no-op tracer and Close is a no-op — callers never need to branch on
// whether tracing is active.
func New(cfg Config) (*Telemetry, error) {
	if !cfg.TracingEnabled {
		return &Telemetry{tracer: trace.NewNoopTracerProvider().Tracer(cfg.ServiceName)}, nil
	}

	provider, err := initTracer(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		return nil, fmt.Errorf("telemetry: failed to initialize tracer: %w", err)
	}
	return &Telemetry{
		provider: provider,
		tracer:   otel.Tracer(cfg.ServiceName),
	}, nil
}

func initTracer(serviceName, endpoint string) (*sdktrace.TracerProvider, error) {
	exporter, err := jaeger.New(jaeger.WithCollectorEndpoint(jaeger.WithEndpoint(endpoint)))
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String(serviceName),
		)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the process-wide tracer, usable directly with
// tracer.Start(ctx, spanName).
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Close flushes and shuts down the exporter, if tracing was enabled.
func (t *Telemetry) Close() error {
	if t.provider != nil {
		return t.provider.Shutdown(context.Background())
	}
	return nil
}
