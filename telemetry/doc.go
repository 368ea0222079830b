/*
Package telemetry exports the aggregates held by a metrics.Manager.

Adapters:

  - OTelExporter registers observable instruments on an OpenTelemetry meter.
    NewMeterProvider wires an OTLP/HTTP push exporter when an endpoint is set.
  - PrometheusCollector serves every series on scrape through client_golang.
  - RedisSink writes periodic snapshots to Redis behind a CircuitBreaker.
  - HealthChecker serves a JSON health document.

All adapters read registry snapshots and never mutate the registries, so
they can run alongside any number of producers.

Usage:

	mp, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, cfg.ServiceName, callmetrics.Version)
	if err != nil {
	    return err
	}
	defer mp.Shutdown(ctx)

	exporter, err := telemetry.NewOTelExporter(mp.Meter(telemetry.InstrumentationName), manager, logger)
	if err != nil {
	    return err
	}
	defer exporter.Shutdown()

	reg := prometheus.NewRegistry()
	reg.MustRegister(telemetry.NewPrometheusCollector("callmetrics", manager, logger))
	http.Handle("/metrics", telemetry.Handler(reg))
*/
package telemetry
