package extraction

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/dimension"
	"github.com/itsneelabh/callmetrics/metrics"
)

// DependencyDurationMetricName is the name of the metric fed by the extractor.
const DependencyDurationMetricName = "Dependency duration"

// Processor consumes telemetry items one at a time.
type Processor interface {
	ExtractMetrics(item core.Item) (bool, error)
}

// Option configures a DependencyMetricsExtractor.
type Option func(*DependencyMetricsExtractor)

// WithLogger sets the logger. Component-aware loggers are tagged with
// "extraction/dependency".
func WithLogger(logger core.Logger) Option {
	return func(e *DependencyMetricsExtractor) {
		if logger == nil {
			return
		}
		if cal, ok := logger.(core.ComponentAwareLogger); ok {
			logger = cal.WithComponent("extraction/dependency")
		}
		e.logger = logger
	}
}

// initialized is the frozen state built by Initialize.
type initialized struct {
	metric     metrics.Metric
	extractors []dimension.Extractor
	config     metrics.Configuration
}

// DependencyMetricsExtractor records the duration of every remote dependency
// call under a bounded set of dimensions.
type DependencyMetricsExtractor struct {
	mu     sync.Mutex // serializes setters and Initialize
	cfg    core.ExtractionConfig
	logger core.Logger

	state atomic.Pointer[initialized]

	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64

	errorLimiter *core.RateLimiter
}

// New creates an uninitialized extractor with the given discovery budgets.
func New(cfg core.ExtractionConfig, opts ...Option) (*DependencyMetricsExtractor, error) {
	if cfg.FallbackValue == "" {
		cfg.FallbackValue = core.DefaultFallbackValue
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &DependencyMetricsExtractor{
		cfg:          cfg,
		logger:       &core.NoOpLogger{},
		errorLimiter: core.NewRateLimiter(time.Second),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the current discovery budgets.
func (e *DependencyMetricsExtractor) Config() core.ExtractionConfig {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// SetMaxDependencyTypesToDiscover sets the call-type budget.
func (e *DependencyMetricsExtractor) SetMaxDependencyTypesToDiscover(n int) error {
	return e.setBudget("SetMaxDependencyTypesToDiscover", n, &e.cfg.MaxDependencyTypesToDiscover)
}

// SetMaxDependencyTargetsToDiscover sets the call-target budget.
func (e *DependencyMetricsExtractor) SetMaxDependencyTargetsToDiscover(n int) error {
	return e.setBudget("SetMaxDependencyTargetsToDiscover", n, &e.cfg.MaxDependencyTargetsToDiscover)
}

// SetMaxCloudRoleInstancesToDiscover sets the role-instance budget.
func (e *DependencyMetricsExtractor) SetMaxCloudRoleInstancesToDiscover(n int) error {
	return e.setBudget("SetMaxCloudRoleInstancesToDiscover", n, &e.cfg.MaxCloudRoleInstancesToDiscover)
}

// SetMaxCloudRoleNamesToDiscover sets the role-name budget.
func (e *DependencyMetricsExtractor) SetMaxCloudRoleNamesToDiscover(n int) error {
	return e.setBudget("SetMaxCloudRoleNamesToDiscover", n, &e.cfg.MaxCloudRoleNamesToDiscover)
}

func (e *DependencyMetricsExtractor) setBudget(name string, n int, dst *int) error {
	op := "DependencyMetricsExtractor." + name

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Load() != nil {
		return &core.FrameworkError{
			Op:      op,
			Kind:    "lifecycle",
			Message: "discovery budgets are frozen once the extractor is initialized",
			Err:     core.ErrAlreadyInitialized,
		}
	}
	if n <= 0 {
		return &core.FrameworkError{
			Op:      op,
			Kind:    "config",
			Message: fmt.Sprintf("budget must be positive, got %d", n),
			Err:     core.ErrInvalidConfiguration,
		}
	}
	*dst = n
	return nil
}

// Initialize builds the dimension extractors, computes the metric
// configuration and creates the metric through factory. It succeeds once.
func (e *DependencyMetricsExtractor) Initialize(factory metrics.Factory) error {
	const op = "DependencyMetricsExtractor.Initialize"

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state.Load() != nil {
		return core.NewFrameworkError(op, "lifecycle", core.ErrAlreadyInitialized)
	}
	if factory == nil {
		return &core.FrameworkError{
			Op:      op,
			Kind:    "config",
			Message: "metric factory is required",
			Err:     core.ErrMissingConfiguration,
		}
	}

	extractors := dimension.DependencyExtractors(e.cfg)
	config := metrics.ComputeConfiguration(extractors, e.cfg.FallbackValue)
	id := metrics.NewIdentifier("", DependencyDurationMetricName, dimension.Names(extractors)...)

	metric, err := factory.CreateMetric(id, config)
	if err != nil {
		return &core.FrameworkError{Op: op, Kind: "config", ID: id.Name, Err: err}
	}
	if metric == nil {
		return &core.FrameworkError{
			Op:      op,
			Kind:    "config",
			ID:      id.Name,
			Message: "factory returned no metric",
			Err:     core.ErrMissingConfiguration,
		}
	}

	e.state.Store(&initialized{
		metric:     metric,
		extractors: extractors,
		config:     config,
	})

	e.logger.Info("Dependency metrics extractor initialized", map[string]interface{}{
		"metric":             id.String(),
		"series_count_limit": config.SeriesCountLimit,
		"max_types":          e.cfg.MaxDependencyTypesToDiscover,
		"max_targets":        e.cfg.MaxDependencyTargetsToDiscover,
		"max_role_instances": e.cfg.MaxCloudRoleInstancesToDiscover,
		"max_role_names":     e.cfg.MaxCloudRoleNamesToDiscover,
	})
	return nil
}

// IsInitialized reports whether Initialize has succeeded.
func (e *DependencyMetricsExtractor) IsInitialized() bool {
	return e.state.Load() != nil
}

// Configuration returns the metric configuration, or false before Initialize.
func (e *DependencyMetricsExtractor) Configuration() (metrics.Configuration, bool) {
	st := e.state.Load()
	if st == nil {
		return metrics.Configuration{}, false
	}
	return st.config, true
}

// Identifier returns the identifier of the metric created by Initialize.
func (e *DependencyMetricsExtractor) Identifier() (metrics.Identifier, bool) {
	st := e.state.Load()
	if st == nil {
		return metrics.Identifier{}, false
	}
	return st.metric.Identifier(), true
}

// ExtractMetrics records item under the dependency duration metric and
// reports whether it was processed. Items of another kind return false
// without error.
func (e *DependencyMetricsExtractor) ExtractMetrics(item core.Item) (bool, error) {
	const op = "DependencyMetricsExtractor.ExtractMetrics"

	dep, ok := item.(*core.RemoteDependency)
	if !ok || dep == nil {
		e.skipped.Add(1)
		return false, nil
	}

	st := e.state.Load()
	if st == nil {
		return false, &core.FrameworkError{
			Op:      op,
			Kind:    "lifecycle",
			Message: "dependency duration metric handle is not set, call Initialize first",
			Err:     core.ErrNotInitialized,
		}
	}

	dims := make([]string, len(st.extractors))
	for i, ex := range st.extractors {
		dims[i] = dimension.SafeExtract(ex, dep)
	}

	if err := st.metric.RecordValue(dep.DurationMs(), dims...); err != nil {
		e.failed.Add(1)
		if e.errorLimiter.Allow() {
			e.logger.Error("Failed to record dependency duration", map[string]interface{}{
				"error":   err.Error(),
				"item_id": dep.ID,
			})
		}
		return false, &core.FrameworkError{Op: op, Kind: "metric", ID: dep.ID, Err: err}
	}

	e.processed.Add(1)
	return true, nil
}

// ExtractBatch processes items in order and returns how many were processed.
// It stops at the first error.
func (e *DependencyMetricsExtractor) ExtractBatch(items []core.Item) (int, error) {
	n := 0
	for _, item := range items {
		ok, err := e.ExtractMetrics(item)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// Stats is a point-in-time view of the extractor.
type Stats struct {
	Initialized bool              `json:"initialized"`
	Processed   int64             `json:"processed"`
	Skipped     int64             `json:"skipped"`
	Failed      int64             `json:"failed"`
	Dimensions  []dimension.Stats `json:"dimensions,omitempty"`
}

// Stats returns processing counters and per-dimension discovery state.
func (e *DependencyMetricsExtractor) Stats() Stats {
	s := Stats{
		Processed: e.processed.Load(),
		Skipped:   e.skipped.Load(),
		Failed:    e.failed.Load(),
	}
	st := e.state.Load()
	if st == nil {
		return s
	}
	s.Initialized = true
	for _, ex := range st.extractors {
		if r, ok := ex.(dimension.StatsReporter); ok {
			s.Dimensions = append(s.Dimensions, r.Stats())
		}
	}
	return s
}
