// Package otel wires OpenTelemetry metrics and tracing for the service.
package otel

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// Config controls which telemetry signals are enabled.
type Config struct {
	ServiceName    string
	ServiceVersion string
	MetricsEnabled bool
	TracesEnabled  bool
}

// ShutdownFunc flushes and stops the configured providers.
type ShutdownFunc func(ctx context.Context) error

// Init installs the global meter and tracer providers. Metrics are exported
// via the Prometheus registry served by PrometheusHandler.
func Init(_ context.Context, cfg Config) (ShutdownFunc, error) {
	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}

	var shutdowns []ShutdownFunc

	if cfg.MetricsEnabled {
		exporter, err := otelprom.New()
		if err != nil {
			return nil, fmt.Errorf("creating prometheus exporter: %w", err)
		}
		meterProvider := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		)
		otel.SetMeterProvider(meterProvider)
		shutdowns = append(shutdowns, meterProvider.Shutdown)
	}

	if cfg.TracesEnabled {
		tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
		otel.SetTracerProvider(tracerProvider)
		shutdowns = append(shutdowns, tracerProvider.Shutdown)
	}

	return func(ctx context.Context) error {
		var firstErr error
		for _, shutdown := range shutdowns {
			if err := shutdown(ctx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	}, nil
}

// HTTPTracing returns otelhttp middleware creating one server span per request.
func HTTPTracing() func(http.Handler) http.Handler {
	return otelhttp.NewMiddleware("http.server")
}

// HTTPMetrics returns middleware recording request count and duration per
// route pattern and status class.
func HTTPMetrics(serviceName string) func(http.Handler) http.Handler {
	meter := otel.Meter(serviceName)

	requests, _ := meter.Int64Counter("http.server.requests",
		metric.WithDescription("Completed HTTP requests"))
	duration, _ := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			attrs := metric.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", routePattern(r)),
				attribute.Int("http.status_code", ww.Status()),
			)
			requests.Add(r.Context(), 1, attrs)
			duration.Record(r.Context(), float64(time.Since(start).Milliseconds()), attrs)
		})
	}
}

// PrometheusHandler serves the default Prometheus registry, which the
// Prometheus exporter feeds.
func PrometheusHandler() http.Handler {
	return promhttp.Handler()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
