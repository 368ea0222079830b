package metrics

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/dimension"
)

func constant(name string) dimension.Extractor {
	return dimension.NewFixed(name, "x", func(core.Item) string { return "x" })
}

func capped(name string, n int) dimension.Extractor {
	return dimension.NewCapped(name, "x", "", n, func(core.Item) string { return "x" })
}

func TestComputeConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		extractors []dimension.Extractor
		wantSeries int
		wantLimits []int
	}{
		{
			name:       "outcome, type and target",
			extractors: []dimension.Extractor{constant("outcome"), capped("type", 2), capped("target", 2)},
			wantSeries: 18,
			wantLimits: []int{1, 2, 2},
		},
		{
			name:       "no dimensions",
			extractors: nil,
			wantSeries: 1,
			wantLimits: []int{},
		},
		{
			name: "dependency defaults",
			extractors: dimension.DependencyExtractors(core.DefaultConfig().Extraction),
			// 2*2*2*16*51*2*3*3
			wantSeries: 2 * 2 * 2 * 16 * 51 * 2 * 3 * 3,
			wantLimits: []int{1, 1, 1, 15, 50, 1, 2, 2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := ComputeConfiguration(tt.extractors, "")
			assert.Equal(t, tt.wantSeries, cfg.SeriesCountLimit)
			assert.Equal(t, tt.wantLimits, cfg.ValuesPerDimensionLimit)
			assert.True(t, cfg.CappingEnabled)
			assert.Equal(t, core.DefaultFallbackValue, cfg.FallbackValue)
		})
	}
}

func TestComputeConfigurationSaturates(t *testing.T) {
	extractors := make([]dimension.Extractor, 0, 8)
	for i := 0; i < 8; i++ {
		extractors = append(extractors, capped("huge", math.MaxInt32))
	}
	cfg := ComputeConfiguration(extractors, "Overflow")
	assert.Equal(t, math.MaxInt, cfg.SeriesCountLimit)
	assert.Equal(t, "Overflow", cfg.FallbackValue)
}

func TestIdentifierEquality(t *testing.T) {
	a := NewIdentifier("", "Dependency duration", "a", "b")
	b := NewIdentifier("", "Dependency duration", "a", "b")
	c := NewIdentifier("", "Dependency duration", "ab")
	d := NewIdentifier("ns", "Dependency duration", "a", "b")

	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Key(), b.Key())
	assert.False(t, a.Equal(c))
	assert.NotEqual(t, a.Key(), c.Key())
	assert.NotEqual(t, a.Key(), d.Key())
	assert.Equal(t, "ns/Dependency duration[a b]", d.String())
}

func TestConfigurationValidate(t *testing.T) {
	id := NewIdentifier("", "m", "a", "b")

	good := Configuration{SeriesCountLimit: 9, ValuesPerDimensionLimit: []int{2, 2}, CappingEnabled: true, FallbackValue: "Other"}
	require.NoError(t, good.Validate(id))

	tests := []struct {
		name   string
		mutate func(c *Configuration)
		want   error
	}{
		{"zero limit", func(c *Configuration) { c.SeriesCountLimit = 0 }, core.ErrInvalidConfiguration},
		{"length mismatch", func(c *Configuration) { c.ValuesPerDimensionLimit = []int{2} }, core.ErrInvalidConfiguration},
		{"zero dimension limit", func(c *Configuration) { c.ValuesPerDimensionLimit = []int{2, 0} }, core.ErrInvalidConfiguration},
		{"missing fallback", func(c *Configuration) { c.FallbackValue = "" }, core.ErrMissingConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := good
			cfg.ValuesPerDimensionLimit = append([]int(nil), good.ValuesPerDimensionLimit...)
			tt.mutate(&cfg)
			err := cfg.Validate(id)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
