package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is()
// These are generic errors that can be wrapped with additional context
var (
	// Lifecycle errors
	ErrNotInitialized     = errors.New("not initialized")
	ErrAlreadyInitialized = errors.New("already initialized")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Metric errors
	ErrDimensionMismatch = errors.New("dimension count mismatch")
	ErrMetricNotFound    = errors.New("metric not found")

	// Record errors
	ErrUnknownItemKind = errors.New("unknown telemetry item kind")
	ErrMalformedItem   = errors.New("malformed telemetry item")

	// Export errors
	ErrCircuitBreakerOpen = errors.New("circuit breaker is open")
	ErrExportFailed       = errors.New("export failed")
)

// FrameworkError provides structured error information with context
// It implements the error interface and supports error wrapping
type FrameworkError struct {
	Op      string // Operation that failed (e.g., "DependencyMetricsExtractor.ExtractMetrics")
	Kind    string // Error kind (e.g., "lifecycle", "config", "metric")
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *FrameworkError) Error() string {
	if e.Op != "" && e.Err != nil {
		if e.Message != "" {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		if e.ID != "" {
			return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *FrameworkError) Unwrap() error {
	return e.Err
}

// NewFrameworkError creates a new FrameworkError
func NewFrameworkError(op, kind string, err error) *FrameworkError {
	return &FrameworkError{
		Op:   op,
		Kind: kind,
		Err:  err,
	}
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// IsLifecycleError checks if an error comes from using a component in the wrong lifecycle state
func IsLifecycleError(err error) bool {
	return errors.Is(err, ErrNotInitialized) ||
		errors.Is(err, ErrAlreadyInitialized)
}

// IsRetryable checks if an error is retryable.
// Only export failures are transient; nothing in the extraction path is ever retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrExportFailed) ||
		errors.Is(err, ErrCircuitBreakerOpen)
}
