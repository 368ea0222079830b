package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/callmetrics/core"
)

func TestManagerCreateMetric(t *testing.T) {
	m := NewManager()
	id := NewIdentifier("", "Dependency duration", "type", "target")
	cfg := Configuration{SeriesCountLimit: 9, ValuesPerDimensionLimit: []int{2, 2}, CappingEnabled: true, FallbackValue: "Other"}

	metric, err := m.CreateMetric(id, cfg)
	require.NoError(t, err)
	assert.True(t, metric.Identifier().Equal(id))
	assert.Equal(t, cfg, metric.Configuration())

	require.NoError(t, metric.RecordValue(42.5, "SQL", "db1"))
	require.NoError(t, metric.RecordValue(10.5, "SQL", "db1"))

	again, err := m.CreateMetric(NewIdentifier("", "Dependency duration", "type", "target"), cfg)
	require.NoError(t, err)
	require.NoError(t, again.RecordValue(1, "SQL", "db1"))

	reg, err := m.Get(id)
	require.NoError(t, err)
	snap := reg.Snapshot()
	require.Len(t, snap, 1)
	assert.EqualValues(t, 3, snap[0].Aggregate.Count)
}

func TestManagerRejectsConflictingConfiguration(t *testing.T) {
	m := NewManager()
	id := NewIdentifier("", "m", "a")
	_, err := m.CreateMetric(id, Configuration{SeriesCountLimit: 3, ValuesPerDimensionLimit: []int{2}, CappingEnabled: true, FallbackValue: "Other"})
	require.NoError(t, err)

	_, err = m.CreateMetric(id, Configuration{SeriesCountLimit: 6, ValuesPerDimensionLimit: []int{5}, CappingEnabled: true, FallbackValue: "Other"})
	require.Error(t, err)
	assert.True(t, core.IsConfigurationError(err))
}

func TestManagerRejectsInvalidConfiguration(t *testing.T) {
	m := NewManager()
	_, err := m.CreateMetric(NewIdentifier("", "m", "a", "b"), Configuration{SeriesCountLimit: 3, ValuesPerDimensionLimit: []int{2}, FallbackValue: "Other"})
	require.Error(t, err)

	var fe *core.FrameworkError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "Manager.CreateMetric", fe.Op)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))
	assert.Empty(t, m.Metrics())
}

func TestManagerGetMissing(t *testing.T) {
	_, err := NewManager().Get(NewIdentifier("", "nope"))
	assert.True(t, errors.Is(err, core.ErrMetricNotFound))
}

func TestManagerMetricsAndStats(t *testing.T) {
	m := NewManager()
	cfg := Configuration{SeriesCountLimit: 2, ValuesPerDimensionLimit: []int{1}, CappingEnabled: true, FallbackValue: "Other"}
	b, err := m.CreateMetric(NewIdentifier("", "b", "x"), cfg)
	require.NoError(t, err)
	_, err = m.CreateMetric(NewIdentifier("", "a", "x"), cfg)
	require.NoError(t, err)

	require.NoError(t, b.RecordValue(1, "one"))
	require.NoError(t, b.RecordValue(1, "two"))

	regs := m.Metrics()
	require.Len(t, regs, 2)
	assert.Equal(t, "a", regs[0].Identifier().Name)
	assert.Equal(t, "b", regs[1].Identifier().Name)

	stats := m.Stats()
	assert.Equal(t, 0, stats[0].LiveSeries)
	assert.Equal(t, 2, stats[1].LiveSeries)
	assert.EqualValues(t, 1, stats[1].Redirected)
}

