// Package callmetrics re-exports the main types of the bounded-cardinality
// dependency metrics pipeline. Import the subpackages directly for anything
// beyond the common path:
//   - github.com/itsneelabh/callmetrics/core - records, config, errors, logging
//   - github.com/itsneelabh/callmetrics/dimension - dimension extractors
//   - github.com/itsneelabh/callmetrics/metrics - series registry and manager
//   - github.com/itsneelabh/callmetrics/extraction - dependency metrics extractor
//   - github.com/itsneelabh/callmetrics/telemetry - OTel, Prometheus and Redis export
package callmetrics

import (
	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/extraction"
	"github.com/itsneelabh/callmetrics/metrics"
)

// Re-export core types
type (
	// Records
	Item             = core.Item
	RemoteDependency = core.RemoteDependency

	// Configuration types
	Config           = core.Config
	Option           = core.Option
	ExtractionConfig = core.ExtractionConfig

	// Interfaces
	Logger = core.Logger

	// Metric types
	Manager       = metrics.Manager
	Metric        = metrics.Metric
	Identifier    = metrics.Identifier
	Configuration = metrics.Configuration

	// Extraction
	DependencyMetricsExtractor = extraction.DependencyMetricsExtractor
)

// Re-export errors
var (
	ErrNotInitialized       = core.ErrNotInitialized
	ErrAlreadyInitialized   = core.ErrAlreadyInitialized
	ErrInvalidConfiguration = core.ErrInvalidConfiguration
)

// Pipeline bundles an initialized extractor with the manager owning its metric.
type Pipeline struct {
	Manager   *metrics.Manager
	Extractor *extraction.DependencyMetricsExtractor
}

// NewPipeline builds and initializes a dependency metrics pipeline from cfg.
// A nil cfg uses the defaults.
func NewPipeline(cfg *core.Config, logger core.Logger) (*Pipeline, error) {
	if cfg == nil {
		cfg = core.DefaultConfig()
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	manager := metrics.NewManager(metrics.WithManagerLogger(logger))
	ex, err := extraction.New(cfg.Extraction, extraction.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := ex.Initialize(manager); err != nil {
		return nil, err
	}
	return &Pipeline{Manager: manager, Extractor: ex}, nil
}

// Registry returns the series registry behind the extractor's metric.
func (p *Pipeline) Registry() (*metrics.SeriesRegistry, error) {
	id, ok := p.Extractor.Identifier()
	if !ok {
		return nil, core.NewFrameworkError("Pipeline.Registry", "lifecycle", core.ErrNotInitialized)
	}
	return p.Manager.Get(id)
}

// NewConfig creates a configuration from defaults, environment and options.
func NewConfig(opts ...Option) (*Config, error) {
	return core.NewConfig(opts...)
}
