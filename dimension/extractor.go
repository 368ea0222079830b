package dimension

import (
	"github.com/itsneelabh/callmetrics/core"
)

// Extractor derives one categorical value from a telemetry item.
//
// Extract must be a pure function of the item and must not fail. An empty
// result means "no value"; the caller then substitutes DefaultValue.
// MaxValues bounds how many distinct values the extractor can emit besides
// its capped bucket; 0 means the dimension is a single fixed bucket.
type Extractor interface {
	Name() string
	MaxValues() int
	DefaultValue() string
	Extract(item core.Item) string
}

// ValueFunc computes a raw dimension value from an item.
type ValueFunc func(item core.Item) string

// Fixed is a dimension without discovery: a constant or a small closed
// classification (true/false). Its effective limit is one bucket.
type Fixed struct {
	name         string
	defaultValue string
	fn           ValueFunc
}

// NewFixed creates a fixed dimension extractor.
func NewFixed(name, defaultValue string, fn ValueFunc) *Fixed {
	return &Fixed{name: name, defaultValue: defaultValue, fn: fn}
}

func (f *Fixed) Name() string         { return f.name }
func (f *Fixed) MaxValues() int       { return 0 }
func (f *Fixed) DefaultValue() string { return f.defaultValue }

func (f *Fixed) Extract(item core.Item) string {
	if f.fn == nil {
		return ""
	}
	return f.fn(item)
}

// Capped is a dimension whose values are discovered at runtime. The first
// MaxValues distinct values are kept; anything after that is reported as the
// capped value.
type Capped struct {
	name         string
	defaultValue string
	cappedValue  string
	table        *DiscoveryTable
	fn           ValueFunc
}

// NewCapped creates a discovery-capped extractor. Values past the budget are
// reported as cappedValue, or core.DefaultFallbackValue when it is empty. A
// non-positive maxValues collapses every value into the capped bucket.
func NewCapped(name, defaultValue, cappedValue string, maxValues int, fn ValueFunc) *Capped {
	if cappedValue == "" {
		cappedValue = core.DefaultFallbackValue
	}
	return &Capped{
		name:         name,
		defaultValue: defaultValue,
		cappedValue:  cappedValue,
		table:        NewDiscoveryTable(maxValues),
		fn:           fn,
	}
}

func (c *Capped) Name() string         { return c.name }
func (c *Capped) MaxValues() int       { return c.table.Capacity() }
func (c *Capped) DefaultValue() string { return c.defaultValue }

// CappedValue returns the bucket reported once the budget is spent.
func (c *Capped) CappedValue() string { return c.cappedValue }

// Extract returns the raw value when it owns (or just claimed) a discovery
// slot, the capped value when the table is full, and "" when the item
// carries no value.
func (c *Capped) Extract(item core.Item) string {
	if c.fn == nil {
		return ""
	}
	raw := c.fn(item)
	if raw == "" {
		return ""
	}
	if c.table.Claim(raw) {
		return raw
	}
	return c.cappedValue
}

// Stats reports the discovery state of this dimension.
func (c *Capped) Stats() Stats {
	s := c.table.Stats()
	s.Name = c.name
	return s
}

// StatsReporter is implemented by extractors that keep discovery state.
type StatsReporter interface {
	Stats() Stats
}

// SafeExtract runs e.Extract, treating a panic as "no value", and applies
// the extractor's default when the result is empty.
func SafeExtract(e Extractor, item core.Item) (value string) {
	defer func() {
		if r := recover(); r != nil {
			value = e.DefaultValue()
		}
	}()
	value = e.Extract(item)
	if value == "" {
		value = e.DefaultValue()
	}
	return value
}

// Names returns the dimension names in order.
func Names(extractors []Extractor) []string {
	names := make([]string, len(extractors))
	for i, e := range extractors {
		names[i] = e.Name()
	}
	return names
}
