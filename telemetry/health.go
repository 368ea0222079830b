package telemetry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/itsneelabh/callmetrics/extraction"
	"github.com/itsneelabh/callmetrics/metrics"
)

// Health statuses.
const (
	HealthOK          = "ok"
	HealthDegraded    = "degraded"
	HealthUnavailable = "unavailable"
)

// Health is the JSON body served by the health endpoint.
type Health struct {
	Status      string                  `json:"status"`
	Initialized bool                    `json:"initialized"`
	Uptime      string                  `json:"uptime"`
	Extractor   *extraction.Stats       `json:"extractor,omitempty"`
	Metrics     []metrics.RegistryStats `json:"metrics"`
	// Saturated lists metrics whose series limit has been reached.
	Saturated []string   `json:"saturated,omitempty"`
	Sink      *SinkStats `json:"sink,omitempty"`
}

// HealthChecker assembles Health from the pipeline components.
type HealthChecker struct {
	start     time.Time
	manager   *metrics.Manager
	extractor *extraction.DependencyMetricsExtractor
	sink      *RedisSink
}

// NewHealthChecker creates a checker. extractor and sink may be nil.
func NewHealthChecker(manager *metrics.Manager, extractor *extraction.DependencyMetricsExtractor, sink *RedisSink) *HealthChecker {
	return &HealthChecker{
		start:     time.Now(),
		manager:   manager,
		extractor: extractor,
		sink:      sink,
	}
}

// Check returns the current health.
func (h *HealthChecker) Check() Health {
	health := Health{
		Status:      HealthOK,
		Initialized: true,
		Uptime:      time.Since(h.start).Round(time.Second).String(),
		Metrics:     h.manager.Stats(),
	}

	for _, s := range health.Metrics {
		if s.LiveSeries >= s.SeriesCountLimit {
			health.Saturated = append(health.Saturated, s.Metric)
		}
	}

	if h.extractor != nil {
		stats := h.extractor.Stats()
		health.Extractor = &stats
		health.Initialized = stats.Initialized
	}

	if h.sink != nil {
		stats := h.sink.Stats()
		health.Sink = &stats
		if stats.CircuitState == StateOpen {
			health.Status = HealthDegraded
		}
	}

	if !health.Initialized {
		health.Status = HealthUnavailable
	}
	return health
}

// ServeHTTP writes the health as JSON: 200 when ok, 206 when an export
// adapter is failing, 503 before the extractor is initialized.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	health := h.Check()
	w.Header().Set("Content-Type", "application/json")

	switch health.Status {
	case HealthUnavailable:
		w.WriteHeader(http.StatusServiceUnavailable)
	case HealthDegraded:
		w.WriteHeader(http.StatusPartialContent)
	default:
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(health)
}
