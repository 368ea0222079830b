package metrics

import (
	"fmt"
	"sort"
	"sync"

	"github.com/itsneelabh/callmetrics/core"
)

// Metric is the handle a producer records observations through.
type Metric interface {
	Identifier() Identifier
	Configuration() Configuration
	// RecordValue adds value to the series named by the ordered dimension values.
	RecordValue(value float64, dimensionValues ...string) error
}

// Factory creates metric handles.
type Factory interface {
	CreateMetric(id Identifier, cfg Configuration) (Metric, error)
}

type handle struct {
	*SeriesRegistry
}

func (h handle) RecordValue(value float64, dimensionValues ...string) error {
	return h.SeriesRegistry.RecordValue(SeriesKey(dimensionValues), value)
}

// Manager owns one SeriesRegistry per metric identifier.
type Manager struct {
	mu         sync.RWMutex
	registries map[string]*SeriesRegistry
	logger     core.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger passed to every registry.
func WithManagerLogger(logger core.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates an empty manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		registries: make(map[string]*SeriesRegistry),
		logger:     &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateMetric returns the metric for id, creating its registry on first use.
// Asking again for an existing identifier with a different configuration
// is an error.
func (m *Manager) CreateMetric(id Identifier, cfg Configuration) (Metric, error) {
	key := id.Key()

	m.mu.RLock()
	reg, ok := m.registries[key]
	m.mu.RUnlock()
	if ok {
		return m.existing(reg, cfg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock
	if reg, ok = m.registries[key]; ok {
		return m.existing(reg, cfg)
	}

	reg, err := NewSeriesRegistry(id, cfg, m.logger)
	if err != nil {
		return nil, &core.FrameworkError{Op: "Manager.CreateMetric", Kind: "config", ID: id.Name, Err: err}
	}
	m.registries[key] = reg

	m.logger.Info("Metric created", map[string]interface{}{
		"metric":             id.String(),
		"series_count_limit": cfg.SeriesCountLimit,
		"dimension_limits":   cfg.ValuesPerDimensionLimit,
		"fallback_value":     cfg.FallbackValue,
	})
	return handle{reg}, nil
}

func (m *Manager) existing(reg *SeriesRegistry, cfg Configuration) (Metric, error) {
	if !reg.Configuration().equal(cfg) {
		return nil, &core.FrameworkError{
			Op:      "Manager.CreateMetric",
			Kind:    "config",
			ID:      reg.Identifier().Name,
			Message: "metric already exists with a different configuration",
			Err:     core.ErrInvalidConfiguration,
		}
	}
	return handle{reg}, nil
}

// Get returns the registry of id.
func (m *Manager) Get(id Identifier) (*SeriesRegistry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reg, ok := m.registries[id.Key()]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, core.ErrMetricNotFound)
	}
	return reg, nil
}

// Metrics lists every registry, ordered by identifier.
func (m *Manager) Metrics() []*SeriesRegistry {
	m.mu.RLock()
	out := make([]*SeriesRegistry, 0, len(m.registries))
	for _, reg := range m.registries {
		out = append(out, reg)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Identifier().Key() < out[j].Identifier().Key()
	})
	return out
}

// Stats returns the stats of every metric.
func (m *Manager) Stats() []RegistryStats {
	regs := m.Metrics()
	out := make([]RegistryStats, len(regs))
	for i, reg := range regs {
		out[i] = reg.Stats()
	}
	return out
}
