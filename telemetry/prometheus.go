package telemetry

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/metrics"
)

// PrometheusCollector exposes every metric of a Manager on scrape. Each
// metric becomes a summary (count and sum) plus min and max gauges, labelled
// by its dimensions. The label set depends on the metric, so the collector
// is unchecked.
type PrometheusCollector struct {
	namespace string
	manager   *metrics.Manager
	logger    core.Logger

	liveDesc       *prometheus.Desc
	limitDesc      *prometheus.Desc
	redirectedDesc *prometheus.Desc

	mu    sync.Mutex
	descs map[string]*seriesDescs // by Identifier.Key; nil marks a metric that cannot be exposed
}

type seriesDescs struct {
	summary, min, max *prometheus.Desc
}

// NewPrometheusCollector creates a collector for manager.
func NewPrometheusCollector(namespace string, manager *metrics.Manager, logger core.Logger) *PrometheusCollector {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	namespace = SanitizeName(namespace)
	return &PrometheusCollector{
		namespace: namespace,
		manager:   manager,
		logger:    logger,
		descs:     make(map[string]*seriesDescs),
		liveDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "metric", "live_series"),
			"Live series per metric.",
			[]string{"metric"}, nil,
		),
		limitDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "metric", "series_limit"),
			"Series count limit per metric.",
			[]string{"metric"}, nil,
		),
		redirectedDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "metric", "redirected_total"),
			"Observations recorded under the fallback series.",
			[]string{"metric"}, nil,
		),
	}
}

// Describe sends nothing: the collector is unchecked.
func (c *PrometheusCollector) Describe(chan<- *prometheus.Desc) {}

// Collect implements prometheus.Collector.
func (c *PrometheusCollector) Collect(ch chan<- prometheus.Metric) {
	for _, reg := range c.manager.Metrics() {
		id := reg.Identifier()
		stats := reg.Stats()

		ch <- prometheus.MustNewConstMetric(c.liveDesc, prometheus.GaugeValue, float64(stats.LiveSeries), id.Name)
		ch <- prometheus.MustNewConstMetric(c.limitDesc, prometheus.GaugeValue, float64(stats.SeriesCountLimit), id.Name)
		ch <- prometheus.MustNewConstMetric(c.redirectedDesc, prometheus.CounterValue, float64(stats.Redirected), id.Name)

		d := c.seriesDescs(id)
		if d == nil {
			continue
		}

		for _, s := range reg.Snapshot() {
			values := []string(s.Key)
			summary, err := prometheus.NewConstSummary(d.summary, uint64(s.Aggregate.Count), s.Aggregate.Sum, nil, values...)
			if err != nil {
				c.logger.Warn("Skipping series on scrape", map[string]interface{}{
					"metric": id.Name,
					"error":  err.Error(),
				})
				continue
			}
			ch <- summary
			ch <- prometheus.MustNewConstMetric(d.min, prometheus.GaugeValue, s.Aggregate.Min, values...)
			ch <- prometheus.MustNewConstMetric(d.max, prometheus.GaugeValue, s.Aggregate.Max, values...)
		}
	}
}

// seriesDescs returns the cached descriptors of id, building them on first
// use. It returns nil when the dimension names do not map to distinct valid
// label names; such a metric is skipped with a single warning.
func (c *PrometheusCollector) seriesDescs(id metrics.Identifier) *seriesDescs {
	key := id.Key()
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.descs[key]; ok {
		return d
	}

	labels, err := labelNames(id.Dimensions)
	if err != nil {
		c.logger.Warn("Metric cannot be exposed to Prometheus", map[string]interface{}{
			"metric": id.String(),
			"error":  err.Error(),
		})
		c.descs[key] = nil
		return nil
	}

	base := prometheus.BuildFQName(c.namespace, SanitizeName(id.Namespace), SanitizeName(id.Name))
	d := &seriesDescs{
		summary: prometheus.NewDesc(base, "Observed values of "+id.Name+".", labels, nil),
		min:     prometheus.NewDesc(base+"_min", "Smallest observed value of "+id.Name+".", labels, nil),
		max:     prometheus.NewDesc(base+"_max", "Largest observed value of "+id.Name+".", labels, nil),
	}
	c.descs[key] = d
	return d
}

// labelNames sanitizes dimension names into label names and rejects empty,
// reserved or colliding results.
func labelNames(dimensions []string) ([]string, error) {
	labels := make([]string, len(dimensions))
	owner := make(map[string]string, len(dimensions))
	for i, dim := range dimensions {
		l := SanitizeName(dim)
		switch {
		case l == "":
			return nil, fmt.Errorf("dimension %q has no valid label name", dim)
		case l == "quantile":
			return nil, fmt.Errorf("dimension %q maps to the reserved label %q", dim, l)
		}
		if prev, ok := owner[l]; ok {
			return nil, fmt.Errorf("dimensions %q and %q both map to label %q", prev, dim, l)
		}
		owner[l] = dim
		labels[i] = l
	}
	return labels, nil
}

// Handler returns a /metrics handler serving reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}

// SanitizeName turns s into a valid Prometheus metric or label name:
// lower snake case with every other character replaced by an underscore.
func SanitizeName(s string) string {
	var b strings.Builder
	prevUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9' && b.Len() > 0:
			b.WriteRune(r)
			prevUnderscore = false
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
			prevUnderscore = false
		default:
			if !prevUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				prevUnderscore = true
			}
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}
