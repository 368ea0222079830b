package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/metrics"
)

// RedisSink periodically writes registry snapshots to Redis so other tools
// can inspect the live series of this process. Each metric is stored as a
// hash under <prefix>:snapshot:<instance>:<metric>, one field per series
// (the JSON-encoded key) holding the JSON-encoded aggregate. Keys expire
// after TTL so a dead instance disappears on its own.
//
// Writes go through a circuit breaker; nothing is retried.
type RedisSink struct {
	client     *redis.Client
	manager    *metrics.Manager
	breaker    *CircuitBreaker
	logger     core.Logger
	prefix     string
	instanceID string
	interval   time.Duration
	ttl        time.Duration

	flushes   atomic.Int64
	failures  atomic.Int64
	lastError atomic.Value // string
}

// NewRedisSink connects to cfg.URL.
func NewRedisSink(cfg core.RedisConfig, manager *metrics.Manager, logger core.Logger) (*RedisSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required: %w", core.ErrMissingConfiguration)
	}
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL: %v: %w", err, core.ErrInvalidConfiguration)
	}
	return NewRedisSinkWithClient(redis.NewClient(opt), cfg, manager, logger), nil
}

// NewRedisSinkWithClient uses an existing client.
func NewRedisSinkWithClient(client *redis.Client, cfg core.RedisConfig, manager *metrics.Manager, logger core.Logger) *RedisSink {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	if cal, ok := logger.(core.ComponentAwareLogger); ok {
		logger = cal.WithComponent("telemetry/redis")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "callmetrics"
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}

	return &RedisSink{
		client:     client,
		manager:    manager,
		logger:     logger,
		prefix:     cfg.KeyPrefix,
		instanceID: uuid.NewString(),
		interval:   cfg.Interval,
		ttl:        cfg.TTL,
		breaker: NewCircuitBreaker(CircuitConfig{
			Enabled:      true,
			MaxFailures:  cfg.MaxFailures,
			RecoveryTime: cfg.RecoveryTime,
		}, logger),
	}
}

// InstanceID identifies this process in snapshot keys.
func (s *RedisSink) InstanceID() string { return s.instanceID }

// CircuitState returns the state of the sink's circuit breaker.
func (s *RedisSink) CircuitState() string { return s.breaker.State() }

// SnapshotKey returns the hash key holding the series of id for one instance.
func SnapshotKey(prefix, instanceID string, id metrics.Identifier) string {
	return fmt.Sprintf("%s:snapshot:%s:%s", prefix, instanceID, SanitizeName(id.Name))
}

// Flush writes one snapshot of every metric.
func (s *RedisSink) Flush(ctx context.Context) error {
	err := s.breaker.Execute(ctx, s.write)
	if err == nil {
		s.flushes.Add(1)
		return nil
	}

	s.failures.Add(1)
	s.lastError.Store(err.Error())
	if errors.Is(err, core.ErrCircuitBreakerOpen) {
		return err
	}
	return fmt.Errorf("redis snapshot: %v: %w", err, core.ErrExportFailed)
}

func (s *RedisSink) write(ctx context.Context) error {
	regs := s.manager.Metrics()
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, reg := range regs {
			key := SnapshotKey(s.prefix, s.instanceID, reg.Identifier())
			fields := make(map[string]interface{})
			for _, series := range reg.Snapshot() {
				field, err := json.Marshal(series.Key)
				if err != nil {
					return err
				}
				value, err := json.Marshal(series.Aggregate)
				if err != nil {
					return err
				}
				fields[string(field)] = value
			}

			pipe.Del(ctx, key)
			if len(fields) > 0 {
				pipe.HSet(ctx, key, fields)
				pipe.Expire(ctx, key, s.ttl)
			}
		}
		return nil
	})
	return err
}

// LoadSnapshot reads back the last snapshot written for id by instanceID.
func (s *RedisSink) LoadSnapshot(ctx context.Context, instanceID string, id metrics.Identifier) ([]metrics.SeriesSnapshot, error) {
	raw, err := s.client.HGetAll(ctx, SnapshotKey(s.prefix, instanceID, id)).Result()
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	out := make([]metrics.SeriesSnapshot, 0, len(raw))
	for field, value := range raw {
		var snap metrics.SeriesSnapshot
		if err := json.Unmarshal([]byte(field), &snap.Key); err != nil {
			return nil, fmt.Errorf("decode series key %q: %w", field, err)
		}
		if err := json.Unmarshal([]byte(value), &snap.Aggregate); err != nil {
			return nil, fmt.Errorf("decode aggregate of %q: %w", field, err)
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := json.Marshal(out[i].Key)
		b, _ := json.Marshal(out[j].Key)
		return string(a) < string(b)
	})
	return out, nil
}

// Run flushes every interval until ctx is done, then makes a final flush
// with a short deadline.
func (s *RedisSink) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Redis snapshot sink started", map[string]interface{}{
		"instance_id": s.instanceID,
		"interval":    s.interval.String(),
		"ttl":         s.ttl.String(),
	})

	for {
		select {
		case <-ticker.C:
			if err := s.Flush(ctx); err != nil {
				s.logger.Error("Redis snapshot failed", map[string]interface{}{
					"error":         err.Error(),
					"circuit_state": s.breaker.State(),
				})
			}
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.Flush(flushCtx); err != nil {
				s.logger.Warn("Final Redis snapshot failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
			cancel()
			return
		}
	}
}

// SinkStats reports the sink counters.
type SinkStats struct {
	Flushes      int64  `json:"flushes"`
	Failures     int64  `json:"failures"`
	LastError    string `json:"last_error,omitempty"`
	CircuitState string `json:"circuit_state"`
	// ConsecutiveFailures is the breaker's count since the last good flush.
	ConsecutiveFailures int64 `json:"consecutive_failures"`
}

// Stats returns the sink counters.
func (s *RedisSink) Stats() SinkStats {
	last, _ := s.lastError.Load().(string)
	return SinkStats{
		Flushes:      s.flushes.Load(),
		Failures:     s.failures.Load(),
		LastError:    last,
		CircuitState: s.breaker.State(),

		ConsecutiveFailures: s.breaker.Failures(),
	}
}

// Close closes the Redis client.
func (s *RedisSink) Close() error {
	return s.client.Close()
}
