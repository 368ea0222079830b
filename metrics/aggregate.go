package metrics

import (
	"math"
	"sync"
)

// Aggregate keeps running statistics of one series.
type Aggregate struct {
	mu    sync.Mutex
	count int64
	sum   float64
	min   float64
	max   float64
}

// AggregateSnapshot is a point-in-time copy of an Aggregate.
type AggregateSnapshot struct {
	Count int64   `json:"count"`
	Sum   float64 `json:"sum"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Record adds one observation. NaN is ignored.
func (a *Aggregate) Record(value float64) {
	if math.IsNaN(value) {
		return
	}
	a.mu.Lock()
	if a.count == 0 {
		a.min, a.max = value, value
	} else {
		if value < a.min {
			a.min = value
		}
		if value > a.max {
			a.max = value
		}
	}
	a.count++
	a.sum += value
	a.mu.Unlock()
}

// Snapshot returns the current statistics.
func (a *Aggregate) Snapshot() AggregateSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return AggregateSnapshot{Count: a.count, Sum: a.sum, Min: a.min, Max: a.max}
}

// Mean returns Sum/Count, or 0 for an empty aggregate.
func (s AggregateSnapshot) Mean() float64 {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / float64(s.Count)
}
