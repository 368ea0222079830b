// Command depmetrics reads remote dependency records as JSON lines, turns
// them into the bounded "Dependency duration" metric and serves the result
// on /metrics (Prometheus) and /health. With an OTLP endpoint configured the
// aggregates are pushed over OTLP/HTTP as well, and with a Redis sink
// configured snapshots are written to Redis.
//
// Usage:
//
//	depmetrics -input records.jsonl -serve
//	cat records.jsonl | depmetrics -config callmetrics.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/itsneelabh/callmetrics"
	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/telemetry"
)

func main() {
	var (
		configFile = flag.String("config", "", "JSON or YAML config file")
		input      = flag.String("input", "-", "JSON-lines input file, - for stdin")
		serve      = flag.Bool("serve", false, "keep serving /metrics and /health after the input is consumed")
	)
	flag.Parse()

	opts := []core.Option{}
	if *configFile != "" {
		opts = append(opts, core.WithConfigFile(*configFile))
	}
	cfg, err := core.NewConfig(opts...)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *input, *serve); err != nil {
		log.Fatalf("depmetrics: %v", err)
	}
}

func run(ctx context.Context, cfg *core.Config, input string, serve bool) error {
	logger := core.NewProductionLogger(cfg.Logging, cfg.ServiceName)
	if pl, ok := logger.(*core.ProductionLogger); ok {
		defer func() { _ = pl.Sync() }()
	}

	pipeline, err := callmetrics.NewPipeline(cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize pipeline: %w", err)
	}

	mp, err := telemetry.NewMeterProvider(ctx, cfg.Telemetry, cfg.ServiceName, callmetrics.Version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Meter provider shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry, cfg.ServiceName, callmetrics.Version)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Tracer provider shutdown failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	exporter, err := telemetry.NewOTelExporter(mp.Meter(telemetry.InstrumentationName), pipeline.Manager, logger)
	if err != nil {
		return err
	}
	defer func() { _ = exporter.Shutdown() }()

	var sink *telemetry.RedisSink
	if cfg.Redis.Enabled {
		sink, err = telemetry.NewRedisSink(cfg.Redis, pipeline.Manager, logger)
		if err != nil {
			return err
		}
		defer sink.Close()

		sinkCtx, cancel := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			sink.Run(sinkCtx)
			close(done)
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Telemetry.PrometheusEnabled {
		reg.MustRegister(telemetry.NewPrometheusCollector(cfg.Telemetry.Namespace, pipeline.Manager, logger))
	}

	health := telemetry.NewHealthChecker(pipeline.Manager, pipeline.Extractor, sink)
	handler := telemetry.InstrumentMiddleware(cfg.ServiceName, &telemetry.MiddlewareConfig{
		MeterProvider:  mp,
		TracerProvider: tp,
		ExcludedPaths:  []string{"/health"},
	})(telemetry.NewMux(telemetry.Handler(reg), health))

	srv := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	ln, err := net.Listen("tcp", cfg.HTTP.Address)
	if err != nil {
		return fmt.Errorf("http server: %w", err)
	}
	srvErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", map[string]interface{}{"address": ln.Addr().String()})
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	r, closeInput, err := openInput(input)
	if err != nil {
		return err
	}
	stats, err := ingest(ctx, r, pipeline.Extractor, cfg.Workers, logger)
	closeInput()
	if err != nil {
		return err
	}

	logger.Info("Input consumed", map[string]interface{}{
		"lines":     stats.Lines,
		"processed": stats.Processed,
		"skipped":   stats.Skipped,
		"malformed": stats.Malformed,
	})
	series, err := pipeline.Registry()
	if err != nil {
		return err
	}
	s := series.Stats()
	logger.Info("Metric summary", map[string]interface{}{
		"metric":             s.Metric,
		"live_series":        s.LiveSeries,
		"series_count_limit": s.SeriesCountLimit,
		"redirected":         s.Redirected,
	})

	if !serve {
		select {
		case err, ok := <-srvErr:
			if ok {
				return fmt.Errorf("http server: %w", err)
			}
		default:
		}
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	case err, ok := <-srvErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	}
}

func openInput(path string) (io.Reader, func(), error) {
	if path == "" || path == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(path) // nosec G304 -- operator supplied path
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
