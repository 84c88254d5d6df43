// Package telemetry wires OpenTelemetry tracing and metrics for the server.
// Export defaults to stdout so the server has working telemetry with zero
// external collector configuration. New returns an error when an exporter
// or provider cannot be initialized; a disabled or nil Telemetry hands out
// no-op tracers and meters.
package telemetry

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Telemetry owns the process's TracerProvider and MeterProvider.
type Telemetry struct {
	enabled        bool
	tracerProvider *trace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// New creates a Telemetry instance for serviceName. If enabled is false, it
// returns a Telemetry whose Tracer/Meter are OpenTelemetry no-ops. w is the
// stdout-style sink for the default exporters (typically os.Stderr so trace
// output never collides with a stdio transport's JSON-RPC stream).
func New(ctx context.Context, serviceName, serviceVersion string, enabled bool, w io.Writer) (*Telemetry, error) {
	if !enabled {
		return &Telemetry{enabled: false}, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(serviceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("telemetry: build resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w), stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("telemetry: create trace exporter: %w", err)
	}
	tp := trace.NewTracerProvider(
		trace.WithBatcher(traceExporter),
		trace.WithResource(res),
	)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create metric exporter: %w", err)
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter)),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	return &Telemetry{enabled: true, tracerProvider: tp, meterProvider: mp}, nil
}

// Tracer returns a tracer scoped to name. Safe to call on a nil Telemetry.
func (t *Telemetry) Tracer(name string) oteltrace.Tracer {
	if t == nil || !t.enabled {
		return otel.GetTracerProvider().Tracer(name)
	}
	return t.tracerProvider.Tracer(name)
}

// Meter returns a meter scoped to name. Safe to call on a nil Telemetry.
func (t *Telemetry) Meter(name string) metric.Meter {
	if t == nil || !t.enabled {
		return otel.GetMeterProvider().Meter(name)
	}
	return t.meterProvider.Meter(name)
}

// Shutdown flushes and stops both providers. No-op if telemetry is disabled.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || !t.enabled {
		return nil
	}
	if err := t.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown tracer provider: %w", err)
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("telemetry: shutdown meter provider: %w", err)
	}
	return nil
}
