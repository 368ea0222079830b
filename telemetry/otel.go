package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/metrics"
)

// InstrumentationName is the meter name used by the OTel exporter.
const InstrumentationName = "github.com/itsneelabh/callmetrics/telemetry"

// NewMeterProvider builds a meter provider for serviceName. With an OTLP
// endpoint configured, metrics are pushed over OTLP/HTTP every
// ExportInterval. Extra readers (a ManualReader in tests) are attached as well.
func NewMeterProvider(ctx context.Context, cfg core.TelemetryConfig, serviceName, version string, readers ...sdkmetric.Reader) (*sdkmetric.MeterProvider, error) {
	res, err := newResource(ctx, serviceName, version)
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetrichttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
		}
		interval := cfg.ExportInterval
		if interval <= 0 {
			interval = time.Minute
		}
		opts = append(opts, sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)),
		))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)
	return mp, nil
}

// NewTracerProvider builds the tracer provider behind the HTTP middleware.
// With an OTLP endpoint configured, spans are batched to it over OTLP/HTTP.
// Extra processors (a tracetest.SpanRecorder in tests) are registered too.
// The provider and the W3C trace context propagator are installed globally.
func NewTracerProvider(ctx context.Context, cfg core.TelemetryConfig, serviceName, version string, processors ...sdktrace.SpanProcessor) (*sdktrace.TracerProvider, error) {
	res, err := newResource(ctx, serviceName, version)
	if err != nil {
		return nil, err
	}

	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	for _, p := range processors {
		opts = append(opts, sdktrace.WithSpanProcessor(p))
	}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlptracehttp.New(ctx,
			otlptracehttp.WithEndpoint(cfg.OTLPEndpoint),
			otlptracehttp.WithInsecure(),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}

	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp, nil
}

func newResource(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

// OTelExporter publishes every metric of a Manager as observable
// instruments. Values are read from registry snapshots at collection time.
type OTelExporter struct {
	manager *metrics.Manager
	logger  core.Logger

	count      metric.Int64ObservableCounter
	sum        metric.Float64ObservableCounter
	min        metric.Float64ObservableGauge
	max        metric.Float64ObservableGauge
	live       metric.Int64ObservableGauge
	limit      metric.Int64ObservableGauge
	redirected metric.Int64ObservableCounter

	mu           sync.Mutex
	registration metric.Registration
}

// NewOTelExporter registers the instruments on meter.
func NewOTelExporter(meter metric.Meter, manager *metrics.Manager, logger core.Logger) (*OTelExporter, error) {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	e := &OTelExporter{manager: manager, logger: logger}

	var err error
	if e.count, err = meter.Int64ObservableCounter("callmetrics.series.count",
		metric.WithDescription("Observations recorded per series")); err != nil {
		return nil, fmt.Errorf("failed to create count counter: %w", err)
	}
	if e.sum, err = meter.Float64ObservableCounter("callmetrics.series.sum",
		metric.WithDescription("Sum of observed values per series"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create sum counter: %w", err)
	}
	if e.min, err = meter.Float64ObservableGauge("callmetrics.series.min",
		metric.WithDescription("Smallest observed value per series"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create min gauge: %w", err)
	}
	if e.max, err = meter.Float64ObservableGauge("callmetrics.series.max",
		metric.WithDescription("Largest observed value per series"), metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("failed to create max gauge: %w", err)
	}
	if e.live, err = meter.Int64ObservableGauge("callmetrics.metric.live_series",
		metric.WithDescription("Live series per metric")); err != nil {
		return nil, fmt.Errorf("failed to create live series gauge: %w", err)
	}
	if e.limit, err = meter.Int64ObservableGauge("callmetrics.metric.series_limit",
		metric.WithDescription("Series count limit per metric")); err != nil {
		return nil, fmt.Errorf("failed to create series limit gauge: %w", err)
	}
	if e.redirected, err = meter.Int64ObservableCounter("callmetrics.metric.redirected",
		metric.WithDescription("Observations recorded under the fallback series")); err != nil {
		return nil, fmt.Errorf("failed to create redirected counter: %w", err)
	}

	reg, err := meter.RegisterCallback(e.observe,
		e.count, e.sum, e.min, e.max, e.live, e.limit, e.redirected)
	if err != nil {
		return nil, fmt.Errorf("failed to register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	for _, reg := range e.manager.Metrics() {
		id := reg.Identifier()
		metricAttr := attribute.String("metric", id.Name)

		stats := reg.Stats()
		o.ObserveInt64(e.live, int64(stats.LiveSeries), metric.WithAttributes(metricAttr))
		o.ObserveInt64(e.limit, int64(stats.SeriesCountLimit), metric.WithAttributes(metricAttr))
		o.ObserveInt64(e.redirected, stats.Redirected, metric.WithAttributes(metricAttr))

		for _, s := range reg.Snapshot() {
			attrs := seriesAttributes(id, s.Key, metricAttr)
			set := metric.WithAttributeSet(attribute.NewSet(attrs...))
			o.ObserveInt64(e.count, s.Aggregate.Count, set)
			o.ObserveFloat64(e.sum, s.Aggregate.Sum, set)
			o.ObserveFloat64(e.min, s.Aggregate.Min, set)
			o.ObserveFloat64(e.max, s.Aggregate.Max, set)
		}
	}
	return nil
}

func seriesAttributes(id metrics.Identifier, key metrics.SeriesKey, extra ...attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(key)+len(extra))
	attrs = append(attrs, extra...)
	for i, v := range key {
		attrs = append(attrs, attribute.String(id.Dimensions[i], v))
	}
	return attrs
}

// Shutdown unregisters the callback.
func (e *OTelExporter) Shutdown() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.registration == nil {
		return nil
	}
	if err := e.registration.Unregister(); err != nil {
		return fmt.Errorf("failed to unregister callback: %w", err)
	}
	e.registration = nil
	return nil
}
