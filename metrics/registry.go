package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/itsneelabh/callmetrics/core"
)

const shardCount = 32

// SeriesKey is the ordered tuple of dimension values identifying one series.
type SeriesKey []string

func (k SeriesKey) encode() string {
	var b strings.Builder
	for _, v := range k {
		writeField(&b, v)
	}
	return b.String()
}

type series struct {
	key SeriesKey
	agg Aggregate
}

type shard struct {
	mu     sync.RWMutex
	series map[string]*series
}

// SeriesRegistry maps series keys of one metric to their aggregates.
//
// The number of live series never exceeds Configuration.SeriesCountLimit.
// One slot is held back from the start for the fallback series, so once
// ordinary keys use up the rest, new keys are recorded under the fallback
// key (every dimension set to the fallback value). Series are never removed.
type SeriesRegistry struct {
	id     Identifier
	cfg    Configuration
	logger core.Logger

	shards [shardCount]shard

	// reserved counts slots handed out, including the fallback slot.
	reserved   atomic.Int64
	live       atomic.Int64
	redirected atomic.Int64

	fallbackKey SeriesKey
	fallbackEnc string

	overflowLog *core.RateLimiter
}

// NewSeriesRegistry creates a registry for one metric.
func NewSeriesRegistry(id Identifier, cfg Configuration, logger core.Logger) (*SeriesRegistry, error) {
	if err := cfg.Validate(id); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	fallback := make(SeriesKey, len(id.Dimensions))
	for i := range fallback {
		fallback[i] = cfg.FallbackValue
	}

	r := &SeriesRegistry{
		id:          id,
		cfg:         cfg,
		logger:      logger,
		fallbackKey: fallback,
		fallbackEnc: fallback.encode(),
		overflowLog: core.NewRateLimiter(time.Minute),
	}
	for i := range r.shards {
		r.shards[i].series = make(map[string]*series)
	}
	r.reserved.Store(1)
	return r, nil
}

// Identifier returns the metric identifier.
func (r *SeriesRegistry) Identifier() Identifier { return r.id }

// Configuration returns the metric configuration.
func (r *SeriesRegistry) Configuration() Configuration { return r.cfg }

// FallbackKey returns the key that absorbs traffic once the series limit is reached.
func (r *SeriesRegistry) FallbackKey() SeriesKey {
	out := make(SeriesKey, len(r.fallbackKey))
	copy(out, r.fallbackKey)
	return out
}

func (r *SeriesRegistry) shardFor(enc string) *shard {
	return &r.shards[xxhash.Sum64String(enc)%shardCount]
}

// RecordValue adds value to the aggregate of key, creating it on first use.
func (r *SeriesRegistry) RecordValue(key SeriesKey, value float64) error {
	if len(key) != len(r.id.Dimensions) {
		return &core.FrameworkError{
			Op:      "SeriesRegistry.RecordValue",
			Kind:    "metric",
			ID:      r.id.Name,
			Message: fmt.Sprintf("got %d dimension values, want %d", len(key), len(r.id.Dimensions)),
			Err:     core.ErrDimensionMismatch,
		}
	}

	enc := key.encode()
	if s := r.lookup(enc); s != nil {
		s.agg.Record(value)
		return nil
	}

	if s := r.getOrCreate(key, enc); s != nil {
		s.agg.Record(value)
		return nil
	}

	n := r.redirected.Add(1)
	if r.overflowLog.Allow() {
		r.logger.Debug("Series limit reached, recording under fallback series", map[string]interface{}{
			"metric":     r.id.Name,
			"limit":      r.cfg.SeriesCountLimit,
			"redirected": n,
		})
	}
	r.fallback().agg.Record(value)
	return nil
}

func (r *SeriesRegistry) lookup(enc string) *series {
	sh := r.shardFor(enc)
	sh.mu.RLock()
	s := sh.series[enc]
	sh.mu.RUnlock()
	return s
}

// getOrCreate returns the series of key, creating it if a slot can be
// reserved. It returns nil when the limit leaves no room for key.
func (r *SeriesRegistry) getOrCreate(key SeriesKey, enc string) *series {
	if enc == r.fallbackEnc {
		return r.fallback()
	}

	sh := r.shardFor(enc)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok := sh.series[enc]; ok {
		return s
	}
	if !r.reserve() {
		return nil
	}
	s := &series{key: append(SeriesKey(nil), key...)}
	sh.series[enc] = s
	r.live.Add(1)
	return s
}

// reserve claims one ordinary slot below the series limit.
func (r *SeriesRegistry) reserve() bool {
	limit := int64(r.cfg.SeriesCountLimit)
	for {
		n := r.reserved.Load()
		if n >= limit {
			return false
		}
		if r.reserved.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// fallback returns the fallback series, creating it in its reserved slot.
func (r *SeriesRegistry) fallback() *series {
	if s := r.lookup(r.fallbackEnc); s != nil {
		return s
	}
	sh := r.shardFor(r.fallbackEnc)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s, ok := sh.series[r.fallbackEnc]; ok {
		return s
	}
	s := &series{key: r.FallbackKey()}
	sh.series[r.fallbackEnc] = s
	r.live.Add(1)
	return s
}

// Len returns the number of live series.
func (r *SeriesRegistry) Len() int {
	return int(r.live.Load())
}

// SeriesSnapshot is one series with its statistics.
type SeriesSnapshot struct {
	Key       SeriesKey         `json:"key"`
	Aggregate AggregateSnapshot `json:"aggregate"`
}

// Snapshot copies every series, sorted by key.
func (r *SeriesRegistry) Snapshot() []SeriesSnapshot {
	out := make([]SeriesSnapshot, 0, r.Len())
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		for _, s := range sh.series {
			out = append(out, SeriesSnapshot{
				Key:       append(SeriesKey(nil), s.key...),
				Aggregate: s.agg.Snapshot(),
			})
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return lessKey(out[i].Key, out[j].Key)
	})
	return out
}

func lessKey(a, b SeriesKey) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

// Stats returns the registry counters.
func (r *SeriesRegistry) Stats() RegistryStats {
	return RegistryStats{
		Metric:           r.id.String(),
		LiveSeries:       r.Len(),
		SeriesCountLimit: r.cfg.SeriesCountLimit,
		Redirected:       r.redirected.Load(),
	}
}
