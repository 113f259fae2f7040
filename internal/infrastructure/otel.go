package infrastructure

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// MetricsProvider bundles the OpenTelemetry meter provider with the
// Prometheus scrape handler it feeds. Metrics stay on the local
// /metrics endpoint; nothing is pushed anywhere.
type MetricsProvider struct {
	provider *sdkmetric.MeterProvider
	handler  http.Handler
}

// InitializeMetrics wires an OpenTelemetry meter provider to a private
// Prometheus registry and installs it as the global provider.
func InitializeMetrics() (*MetricsProvider, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	return &MetricsProvider{
		provider: provider,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}, nil
}

// Handler returns the /metrics scrape handler.
func (m *MetricsProvider) Handler() http.Handler {
	return m.handler
}

// Shutdown flushes and stops the meter provider.
func (m *MetricsProvider) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}

// TracingProvider owns the tracer provider behind the per-request
// server spans. Spans go to a local stdout writer only; like metrics,
// nothing leaves the machine.
type TracingProvider struct {
	provider *sdktrace.TracerProvider
}

// InitializeTracing wires a tracer provider with a stdout span exporter
// and installs it as the global provider.
func InitializeTracing() (*TracingProvider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout trace exporter: %w", err)
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)

	return &TracingProvider{provider: provider}, nil
}

// Shutdown flushes pending spans and stops the tracer provider.
func (t *TracingProvider) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
