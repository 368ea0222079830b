package dimension

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/callmetrics/core"
)

func TestDependencyExtractorsOrderAndBudgets(t *testing.T) {
	cfg := core.DefaultConfig().Extraction
	extractors := DependencyExtractors(cfg)

	require.Len(t, extractors, 8)
	assert.Equal(t, []string{
		MetricIDDimension,
		IsAutocollectedDimension,
		SuccessDimension,
		TypeDimension,
		TargetDimension,
		SyntheticDimension,
		RoleInstanceDimension,
		RoleNameDimension,
	}, Names(extractors))

	budgets := make([]int, len(extractors))
	for i, e := range extractors {
		budgets[i] = e.MaxValues()
	}
	assert.Equal(t, []int{0, 0, 0, 15, 50, 0, 2, 2}, budgets)
}

func TestDependencyExtractorsValues(t *testing.T) {
	extractors := DependencyExtractors(core.DefaultConfig().Extraction)

	item := dependency(func(d *core.RemoteDependency) {
		d.Success = core.Bool(false)
		d.Type = "SQL"
		d.Target = "db1"
		d.SyntheticSource = ""
	})

	got := make([]string, len(extractors))
	for i, e := range extractors {
		got[i] = SafeExtract(e, item)
	}

	assert.Equal(t, []string{
		DependencyDurationMetricID,
		TrueValue,
		FalseValue,
		"SQL",
		"db1",
		FalseValue,
		"frontend-0",
		"frontend",
	}, got)
}

func TestDependencyExtractorsDefaults(t *testing.T) {
	extractors := DependencyExtractors(core.DefaultConfig().Extraction)

	item := &core.RemoteDependency{ID: "bare"}
	got := make([]string, len(extractors))
	for i, e := range extractors {
		got[i] = SafeExtract(e, item)
	}

	assert.Equal(t, []string{
		DependencyDurationMetricID,
		TrueValue,
		TrueValue,
		OtherValue,
		OtherValue,
		FalseValue,
		UnknownValue,
		UnknownValue,
	}, got)
}
