package metrics

import (
	"fmt"
	"math"
	"strings"

	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/dimension"
)

// Identifier names one logical metric. Two identifiers are equal when their
// namespace, name and ordered dimension names are equal.
type Identifier struct {
	Namespace  string   `json:"namespace"`
	Name       string   `json:"name"`
	Dimensions []string `json:"dimensions"`
}

// NewIdentifier creates an identifier, copying the dimension names.
func NewIdentifier(namespace, name string, dimensions ...string) Identifier {
	dims := make([]string, len(dimensions))
	copy(dims, dimensions)
	return Identifier{Namespace: namespace, Name: name, Dimensions: dims}
}

// Key returns a string that is equal for structurally equal identifiers.
func (id Identifier) Key() string {
	var b strings.Builder
	writeField(&b, id.Namespace)
	writeField(&b, id.Name)
	for _, d := range id.Dimensions {
		writeField(&b, d)
	}
	return b.String()
}

// Equal reports structural equality.
func (id Identifier) Equal(other Identifier) bool {
	if id.Namespace != other.Namespace || id.Name != other.Name || len(id.Dimensions) != len(other.Dimensions) {
		return false
	}
	for i := range id.Dimensions {
		if id.Dimensions[i] != other.Dimensions[i] {
			return false
		}
	}
	return true
}

func (id Identifier) String() string {
	if id.Namespace == "" {
		return fmt.Sprintf("%s%v", id.Name, id.Dimensions)
	}
	return fmt.Sprintf("%s/%s%v", id.Namespace, id.Name, id.Dimensions)
}

// Configuration holds the cardinality bounds of one metric.
type Configuration struct {
	SeriesCountLimit        int    `json:"series_count_limit"`
	ValuesPerDimensionLimit []int  `json:"values_per_dimension_limit"`
	CappingEnabled          bool   `json:"capping_enabled"`
	FallbackValue           string `json:"fallback_value"`
}

// ComputeConfiguration derives the metric configuration from the ordered
// extractors. A dimension's effective limit is its MaxValues, or 1 for fixed
// dimensions. The series limit is the product of (1 + limit) over all
// dimensions: every dimension may show each discovered value plus the
// fallback bucket. The product saturates at math.MaxInt.
func ComputeConfiguration(extractors []dimension.Extractor, fallback string) Configuration {
	if fallback == "" {
		fallback = core.DefaultFallbackValue
	}

	limits := make([]int, len(extractors))
	series := 1
	for i, e := range extractors {
		limit := e.MaxValues()
		if limit <= 0 {
			limit = 1
		}
		limits[i] = limit
		series = saturatingMul(series, 1+limit)
	}

	return Configuration{
		SeriesCountLimit:        series,
		ValuesPerDimensionLimit: limits,
		CappingEnabled:          true,
		FallbackValue:           fallback,
	}
}

func saturatingMul(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	if b < 0 || a > math.MaxInt/b {
		return math.MaxInt
	}
	return a * b
}

// Validate checks the configuration against the identifier it will be used with.
func (c Configuration) Validate(id Identifier) error {
	if c.SeriesCountLimit < 1 {
		return fmt.Errorf("series count limit must be at least 1, got %d: %w", c.SeriesCountLimit, core.ErrInvalidConfiguration)
	}
	if len(c.ValuesPerDimensionLimit) != len(id.Dimensions) {
		return fmt.Errorf("%d per-dimension limits for %d dimensions: %w",
			len(c.ValuesPerDimensionLimit), len(id.Dimensions), core.ErrInvalidConfiguration)
	}
	for i, limit := range c.ValuesPerDimensionLimit {
		if limit < 1 {
			return fmt.Errorf("limit of dimension %q must be at least 1, got %d: %w",
				id.Dimensions[i], limit, core.ErrInvalidConfiguration)
		}
	}
	if c.CappingEnabled && c.FallbackValue == "" {
		return fmt.Errorf("capping enabled without a fallback value: %w", core.ErrMissingConfiguration)
	}
	return nil
}

func (c Configuration) equal(other Configuration) bool {
	if c.SeriesCountLimit != other.SeriesCountLimit ||
		c.CappingEnabled != other.CappingEnabled ||
		c.FallbackValue != other.FallbackValue ||
		len(c.ValuesPerDimensionLimit) != len(other.ValuesPerDimensionLimit) {
		return false
	}
	for i := range c.ValuesPerDimensionLimit {
		if c.ValuesPerDimensionLimit[i] != other.ValuesPerDimensionLimit[i] {
			return false
		}
	}
	return true
}

// writeField appends a length-prefixed field so that no value can be
// confused with a separator.
func writeField(b *strings.Builder, s string) {
	fmt.Fprintf(b, "%d:%s", len(s), s)
}
