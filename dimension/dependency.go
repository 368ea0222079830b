package dimension

import (
	"strings"

	"github.com/itsneelabh/callmetrics/core"
)

// Dimension names of the dependency duration metric.
const (
	MetricIDDimension        = "_MS.MetricId"
	IsAutocollectedDimension = "_MS.IsAutocollected"
	SuccessDimension         = "Dependency.Success"
	TypeDimension            = "Dependency.Type"
	TargetDimension          = "dependency/target"
	SyntheticDimension       = "operation/synthetic"
	RoleInstanceDimension    = "cloud/roleInstance"
	RoleNameDimension        = "cloud/roleName"
)

// Dimension values.
const (
	DependencyDurationMetricID = "dependencies/duration"
	TrueValue                  = "True"
	FalseValue                 = "False"
	OtherValue                 = "Other"
	UnknownValue               = "Unknown"
)

// fromDependency adapts a RemoteDependency accessor into a ValueFunc that
// declines every other item kind.
func fromDependency(fn func(d *core.RemoteDependency) string) ValueFunc {
	return func(item core.Item) string {
		dep, ok := item.(*core.RemoteDependency)
		if !ok || dep == nil {
			return ""
		}
		return fn(dep)
	}
}

func boolValue(b bool) string {
	if b {
		return TrueValue
	}
	return FalseValue
}

// NewMetricIDExtractor tags every series with the metric id.
func NewMetricIDExtractor() *Fixed {
	return NewFixed(MetricIDDimension, DependencyDurationMetricID, fromDependency(func(*core.RemoteDependency) string {
		return DependencyDurationMetricID
	}))
}

// NewIsAutocollectedExtractor marks the series as produced by the SDK rather than the user.
func NewIsAutocollectedExtractor() *Fixed {
	return NewFixed(IsAutocollectedDimension, TrueValue, fromDependency(func(*core.RemoteDependency) string {
		return TrueValue
	}))
}

// NewSuccessExtractor classifies the call outcome. Calls with an unknown
// outcome count as successful.
func NewSuccessExtractor() *Fixed {
	return NewFixed(SuccessDimension, TrueValue, fromDependency(func(d *core.RemoteDependency) string {
		if d.Success == nil {
			return ""
		}
		return boolValue(*d.Success)
	}))
}

// NewSyntheticExtractor splits synthetic traffic from real traffic.
func NewSyntheticExtractor() *Fixed {
	return NewFixed(SyntheticDimension, FalseValue, fromDependency(func(d *core.RemoteDependency) string {
		return boolValue(d.IsSynthetic())
	}))
}

// NewTypeExtractor discovers up to maxValues call types (HTTP, SQL, ...).
func NewTypeExtractor(maxValues int, fallback string) *Capped {
	return NewCapped(TypeDimension, OtherValue, fallback, maxValues, fromDependency(func(d *core.RemoteDependency) string {
		return strings.TrimSpace(d.Type)
	}))
}

// NewTargetExtractor discovers up to maxValues call targets (host names, databases, ...).
func NewTargetExtractor(maxValues int, fallback string) *Capped {
	return NewCapped(TargetDimension, OtherValue, fallback, maxValues, fromDependency(func(d *core.RemoteDependency) string {
		return strings.TrimSpace(d.Target)
	}))
}

// NewRoleInstanceExtractor discovers up to maxValues originating role instances.
func NewRoleInstanceExtractor(maxValues int, fallback string) *Capped {
	return NewCapped(RoleInstanceDimension, UnknownValue, fallback, maxValues, fromDependency(func(d *core.RemoteDependency) string {
		return strings.TrimSpace(d.RoleInstance)
	}))
}

// NewRoleNameExtractor discovers up to maxValues originating role names.
func NewRoleNameExtractor(maxValues int, fallback string) *Capped {
	return NewCapped(RoleNameDimension, UnknownValue, fallback, maxValues, fromDependency(func(d *core.RemoteDependency) string {
		return strings.TrimSpace(d.RoleName)
	}))
}

// DependencyExtractors returns the ordered dimension set of the dependency
// duration metric. The order is part of the metric identity. Capped
// dimensions report cfg.FallbackValue past their budget, the same value the
// registry uses once the series limit is hit.
func DependencyExtractors(cfg core.ExtractionConfig) []Extractor {
	return []Extractor{
		NewMetricIDExtractor(),
		NewIsAutocollectedExtractor(),
		NewSuccessExtractor(),
		NewTypeExtractor(cfg.MaxDependencyTypesToDiscover, cfg.FallbackValue),
		NewTargetExtractor(cfg.MaxDependencyTargetsToDiscover, cfg.FallbackValue),
		NewSyntheticExtractor(),
		NewRoleInstanceExtractor(cfg.MaxCloudRoleInstancesToDiscover, cfg.FallbackValue),
		NewRoleNameExtractor(cfg.MaxCloudRoleNamesToDiscover, cfg.FallbackValue),
	}
}
