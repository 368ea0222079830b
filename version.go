package callmetrics

// Version information for callmetrics
const (
	// Version is the current library version
	Version = "development"

	// BuildDate is set during build time
	BuildDate = "development"

	// GitCommit is set during build time
	GitCommit = "unknown"
)
