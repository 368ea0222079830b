package dimension

import (
	"sync"
	"sync/atomic"

	"github.com/axiomhq/hyperloglog"
)

const maxPrealloc = 256

// DiscoveryTable tracks the first N distinct values offered to a dimension.
// Slots are claimed in insertion order and never released: the first caller
// offering a value owns its slot, concurrent callers offering the same value
// share it, and no value ever occupies two slots.
type DiscoveryTable struct {
	capacity int

	mu    sync.RWMutex
	index map[string]int // value -> slot
	slots []string       // claimed values in insertion order
	full  atomic.Bool

	capped atomic.Int64

	// sketch estimates distinct values that arrived after the table filled up.
	sketchMu sync.Mutex
	sketch   *hyperloglog.Sketch
}

// NewDiscoveryTable creates a table with room for capacity values.
// A non-positive capacity yields a table that rejects everything.
func NewDiscoveryTable(capacity int) *DiscoveryTable {
	if capacity < 0 {
		capacity = 0
	}
	prealloc := capacity
	if prealloc > maxPrealloc {
		prealloc = maxPrealloc
	}
	t := &DiscoveryTable{
		capacity: capacity,
		index:    make(map[string]int, prealloc),
		slots:    make([]string, 0, prealloc),
		sketch:   hyperloglog.New14(),
	}
	if capacity == 0 {
		t.full.Store(true)
	}
	return t
}

// Capacity returns the number of slots.
func (t *DiscoveryTable) Capacity() int {
	return t.capacity
}

// Claim reports whether value owns a slot, claiming a free one if needed.
func (t *DiscoveryTable) Claim(value string) bool {
	t.mu.RLock()
	_, ok := t.index[value]
	t.mu.RUnlock()
	if ok {
		return true
	}

	if !t.full.Load() {
		t.mu.Lock()
		// Double-check after acquiring write lock
		if _, ok = t.index[value]; ok {
			t.mu.Unlock()
			return true
		}
		if len(t.slots) < t.capacity {
			t.index[value] = len(t.slots)
			t.slots = append(t.slots, value)
			if len(t.slots) == t.capacity {
				t.full.Store(true)
			}
			t.mu.Unlock()
			return true
		}
		t.mu.Unlock()
	}

	t.capped.Add(1)
	t.sketchMu.Lock()
	t.sketch.Insert([]byte(value))
	t.sketchMu.Unlock()
	return false
}

// Values returns the claimed values in insertion order.
func (t *DiscoveryTable) Values() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.slots))
	copy(out, t.slots)
	return out
}

// Stats summarizes the table.
type Stats struct {
	Name               string   `json:"name"`
	Capacity           int      `json:"capacity"`
	Discovered         []string `json:"discovered"`
	CappedObservations int64    `json:"capped_observations"`
	// EstimatedDistinct approximates how many distinct raw values were
	// offered, including those folded into the capped bucket.
	EstimatedDistinct uint64 `json:"estimated_distinct"`
}

// Stats returns a point-in-time summary.
func (t *DiscoveryTable) Stats() Stats {
	values := t.Values()

	var overflow uint64
	if t.capped.Load() > 0 {
		t.sketchMu.Lock()
		overflow = t.sketch.Estimate()
		t.sketchMu.Unlock()
	}

	return Stats{
		Capacity:           t.capacity,
		Discovered:         values,
		CappedObservations: t.capped.Load(),
		EstimatedDistinct:  uint64(len(values)) + overflow,
	}
}
