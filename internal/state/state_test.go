package state

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsmon/internal/models"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return mr, client
}

func TestMemoryLimiter(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	l := NewMemoryLimiter()
	l.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := l.Allow(ctx, "memory:warning", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = l.Allow(ctx, "memory:warning", time.Minute)
	assert.False(t, ok, "second send inside window")

	ok, _ = l.Allow(ctx, "disk:warning", time.Minute)
	assert.True(t, ok, "keys are independent")

	now = now.Add(time.Minute)
	ok, _ = l.Allow(ctx, "memory:warning", time.Minute)
	assert.True(t, ok, "window elapsed")
}

func TestMemoryLimiterZeroInterval(t *testing.T) {
	l := NewMemoryLimiter()
	for i := 0; i < 3; i++ {
		ok, err := l.Allow(context.Background(), "k", 0)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestRedisLimiter(t *testing.T) {
	mr, client := setupTestRedis(t)
	l := NewRedisLimiter(client)
	ctx := context.Background()

	ok, err := l.Allow(ctx, "cpu-one-minute:warning", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists(resendKeyPrefix+"cpu-one-minute:warning"))

	ok, err = l.Allow(ctx, "cpu-one-minute:warning", 5*time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	mr.FastForward(5 * time.Minute)

	ok, err = l.Allow(ctx, "cpu-one-minute:warning", 5*time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLimiterSharedAcrossInstances(t *testing.T) {
	_, client := setupTestRedis(t)
	a := NewRedisLimiter(client)
	b := NewRedisLimiter(client)
	ctx := context.Background()

	ok, err := a.Allow(ctx, "disk:warning", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Allow(ctx, "disk:warning", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLimiterError(t *testing.T) {
	mr, client := setupTestRedis(t)
	mr.Close()

	_, err := NewRedisLimiter(client).Allow(context.Background(), "k", time.Minute)
	assert.Error(t, err)
}

func TestNewRedisClient(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()

	client, err := NewRedisClient(context.Background(), addr)
	require.NoError(t, err)
	require.NoError(t, client.Close())

	// nothing listens on addr once the server is gone
	mr.Close()
	_, err = NewRedisClient(context.Background(), addr)
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	var th models.Thresholds
	th = th.With(models.Memory, 75).With(models.DiskSpace, 90)
	s := NewStore("web-1", "prod", th)

	snap := s.Snapshot()
	assert.Equal(t, "web-1", snap.Host)
	assert.Equal(t, map[models.MetricKind]float64{models.Memory: 75, models.DiskSpace: 90}, snap.Thresholds)
	assert.Zero(t, snap.Cycles)

	at := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	s.Update(at,
		[]models.Reading{{Kind: models.Memory, Value: 80, Timestamp: at}},
		map[models.MetricKind]bool{models.Memory: true, models.DiskSpace: false},
		map[models.MetricKind]Failure{models.DiskSpace: {Reason: "io", Error: "statfs failed", At: at}},
	)

	snap = s.Snapshot()
	assert.Equal(t, uint64(1), snap.Cycles)
	assert.Equal(t, at, snap.LastCycle)
	assert.Equal(t, 80.0, snap.Readings[models.Memory].Value)
	assert.True(t, snap.Exceeded[models.Memory])
	assert.Equal(t, "io", snap.Failures[models.DiskSpace].Reason)

	// snapshots are copies
	snap.Exceeded[models.Memory] = false
	assert.True(t, s.Snapshot().Exceeded[models.Memory])

	// failures are replaced each cycle, readings are kept
	s.Update(at.Add(time.Minute), nil, map[models.MetricKind]bool{models.Memory: false}, nil)
	snap = s.Snapshot()
	assert.Empty(t, snap.Failures)
	assert.Equal(t, 80.0, snap.Readings[models.Memory].Value)

	data, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"memory":false`)
}
