package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/extraction"
)

const maxLineSize = 1 << 20

type ingestStats struct {
	Lines     int64 `json:"lines"`
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Malformed int64 `json:"malformed"`
}

// ingest decodes JSON-lines records from r and feeds them to p using at most
// workers goroutines. Malformed lines are counted and skipped. A lifecycle
// error from p aborts the run.
func ingest(ctx context.Context, r io.Reader, p extraction.Processor, workers int, logger core.Logger) (ingestStats, error) {
	if workers < 1 {
		workers = 1
	}

	var lines, processed, skipped, malformed atomic.Int64
	// aborted stops the reader once a worker hit a lifecycle error; the
	// pool's own context is not exposed to the submitting goroutine.
	var aborted atomic.Bool
	wp := pool.New().WithContext(ctx).WithCancelOnError().WithFirstError().WithMaxGoroutines(workers)
	limiter := core.NewRateLimiter(time.Second)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	for scanner.Scan() {
		if ctx.Err() != nil || aborted.Load() {
			break
		}
		line := append([]byte(nil), scanner.Bytes()...)
		if len(line) == 0 {
			continue
		}
		n := lines.Add(1)

		wp.Go(func(ctx context.Context) error {
			item, err := core.DecodeItem(line)
			if err != nil {
				malformed.Add(1)
				if limiter.Allow() {
					logger.Warn("Skipping malformed record", map[string]interface{}{
						"line":  n,
						"error": err.Error(),
					})
				}
				return nil
			}

			ok, err := p.ExtractMetrics(item)
			if err != nil {
				if core.IsLifecycleError(err) {
					aborted.Store(true)
					return err
				}
				logger.Error("Failed to process record", map[string]interface{}{
					"item_id": item.ItemID(),
					"error":   err.Error(),
				})
				return nil
			}
			if ok {
				processed.Add(1)
			} else {
				skipped.Add(1)
			}
			return nil
		})
	}

	poolErr := wp.Wait()
	stats := ingestStats{
		Lines:     lines.Load(),
		Processed: processed.Load(),
		Skipped:   skipped.Load(),
		Malformed: malformed.Load(),
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read input: %w", err)
	}
	if poolErr != nil && !errors.Is(poolErr, context.Canceled) {
		return stats, poolErr
	}
	return stats, nil
}
