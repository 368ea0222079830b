package telemetry

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MiddlewareConfig configures InstrumentMiddleware.
type MiddlewareConfig struct {
	// MeterProvider receives the HTTP server metrics. Nil uses the global provider.
	MeterProvider metric.MeterProvider

	// TracerProvider receives one server span per request. Nil uses the global provider.
	TracerProvider trace.TracerProvider

	// ExcludedPaths are served without instrumentation.
	ExcludedPaths []string
}

// InstrumentMiddleware returns middleware recording HTTP server metrics and a
// server span per request for the handlers of the metrics endpoint.
func InstrumentMiddleware(serviceName string, config *MiddlewareConfig) func(http.Handler) http.Handler {
	opts := []otelhttp.Option{
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "HTTP " + r.Method + " " + r.URL.Path
		}),
	}

	if config != nil {
		if config.MeterProvider != nil {
			opts = append(opts, otelhttp.WithMeterProvider(config.MeterProvider))
		}
		if config.TracerProvider != nil {
			opts = append(opts, otelhttp.WithTracerProvider(config.TracerProvider))
		}
		if len(config.ExcludedPaths) > 0 {
			pathSet := make(map[string]bool, len(config.ExcludedPaths))
			for _, path := range config.ExcludedPaths {
				pathSet[path] = true
			}
			opts = append(opts, otelhttp.WithFilter(func(r *http.Request) bool {
				return !pathSet[r.URL.Path]
			}))
		}
	}

	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName, opts...)
	}
}

// NewMux serves the Prometheus registry on /metrics and health on /health.
func NewMux(metricsHandler, health http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metricsHandler)
	mux.Handle("/health", health)
	return mux
}
