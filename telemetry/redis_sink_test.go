package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/callmetrics/core"
	"github.com/itsneelabh/callmetrics/metrics"
)

func newTestSink(t *testing.T, manager *metrics.Manager) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	sink := NewRedisSinkWithClient(client, core.RedisConfig{
		KeyPrefix:    "test",
		Interval:     10 * time.Millisecond,
		TTL:          time.Minute,
		MaxFailures:  2,
		RecoveryTime: time.Hour,
	}, manager, nil)
	t.Cleanup(func() { _ = sink.Close() })
	return sink, mr
}

func TestRedisSinkFlushWritesSnapshot(t *testing.T) {
	manager := populatedManager(t)
	sink, mr := newTestSink(t, manager)
	ctx := context.Background()

	require.NoError(t, sink.Flush(ctx))

	id := manager.Metrics()[0].Identifier()
	key := SnapshotKey("test", sink.InstanceID(), id)
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Minute, mr.TTL(key))

	field := mr.HGet(key, `["SQL","db1"]`)
	assert.JSONEq(t, `{"count":2,"sum":53,"min":10.5,"max":42.5}`, field)

	snap, err := sink.LoadSnapshot(ctx, sink.InstanceID(), id)
	require.NoError(t, err)
	require.Len(t, snap, 2)
	assert.Equal(t, metrics.SeriesKey{"HTTP", "api"}, snap[0].Key)
	assert.Equal(t, metrics.SeriesKey{"SQL", "db1"}, snap[1].Key)
	assert.EqualValues(t, 2, snap[1].Aggregate.Count)

	stats := sink.Stats()
	assert.EqualValues(t, 1, stats.Flushes)
	assert.Equal(t, StateClosed, stats.CircuitState)
	assert.Zero(t, stats.ConsecutiveFailures)
}

func TestRedisSinkFlushReplacesPreviousSnapshot(t *testing.T) {
	manager := metrics.NewManager()
	metric, err := manager.CreateMetric(metrics.NewIdentifier("", "m", "d"),
		metrics.Configuration{SeriesCountLimit: 3, ValuesPerDimensionLimit: []int{2}, CappingEnabled: true, FallbackValue: "Other"})
	require.NoError(t, err)
	sink, mr := newTestSink(t, manager)

	require.NoError(t, metric.RecordValue(1, "a"))
	require.NoError(t, sink.Flush(context.Background()))
	require.NoError(t, metric.RecordValue(2, "a"))
	require.NoError(t, sink.Flush(context.Background()))

	key := SnapshotKey("test", sink.InstanceID(), metric.Identifier())
	assert.JSONEq(t, `{"count":2,"sum":3,"min":1,"max":2}`, mr.HGet(key, `["a"]`))
}

func TestRedisSinkOpensCircuitOnFailures(t *testing.T) {
	sink, mr := newTestSink(t, populatedManager(t))
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	for i := 0; i < 2; i++ {
		err := sink.Flush(ctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, core.ErrExportFailed))
		assert.True(t, core.IsRetryable(err))
	}
	assert.Equal(t, StateOpen, sink.CircuitState())

	err := sink.Flush(ctx)
	assert.True(t, errors.Is(err, core.ErrCircuitBreakerOpen))
	stats := sink.Stats()
	assert.EqualValues(t, 3, stats.Failures)
	assert.EqualValues(t, 2, stats.ConsecutiveFailures, "rejected flushes do not count against the breaker")
	assert.NotEmpty(t, stats.LastError)
}

func TestRedisSinkRunFlushesUntilCancelled(t *testing.T) {
	manager := populatedManager(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sink := NewRedisSinkWithClient(client, core.RedisConfig{Interval: 5 * time.Millisecond}, manager, nil)
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sink.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	assert.GreaterOrEqual(t, sink.Stats().Flushes, int64(2))
	key := SnapshotKey("callmetrics", sink.InstanceID(), manager.Metrics()[0].Identifier())
	assert.True(t, mr.Exists(key))
}

func TestNewRedisSinkFromURL(t *testing.T) {
	mr := miniredis.RunT(t)
	sink, err := NewRedisSink(core.RedisConfig{URL: "redis://" + mr.Addr()}, populatedManager(t), nil)
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.Flush(context.Background()))
	assert.NotEmpty(t, mr.Keys())
}

func TestNewRedisSinkRequiresURL(t *testing.T) {
	_, err := NewRedisSink(core.RedisConfig{}, metrics.NewManager(), nil)
	assert.True(t, errors.Is(err, core.ErrMissingConfiguration))

	_, err = NewRedisSink(core.RedisConfig{URL: "://bad"}, metrics.NewManager(), nil)
	assert.True(t, errors.Is(err, core.ErrInvalidConfiguration))
}
