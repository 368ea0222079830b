/*
Package extraction turns remote dependency records into the bounded
"Dependency duration" metric.

Lifecycle:

A DependencyMetricsExtractor starts uninitialized. The discovery budgets
can be changed until Initialize is called with a metric factory; after that
the configuration is frozen and every setter fails with
core.ErrAlreadyInitialized.

	ex, err := extraction.New(core.DefaultConfig().Extraction)
	if err != nil {
	    return err
	}
	if err := ex.Initialize(metrics.NewManager()); err != nil {
	    return err
	}

	processed, err := ex.ExtractMetrics(item)

Records of any other kind are reported as not processed without error.
Calling ExtractMetrics before Initialize fails on every call with
core.ErrNotInitialized.

Thread Safety:

ExtractMetrics and ExtractBatch may be called from any number of goroutines.
Dimension discovery and series creation are synchronized internally.
*/
package extraction
