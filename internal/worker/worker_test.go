package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerFirstTickAfterInterval(t *testing.T) {
	var ticks atomic.Int32
	s := NewScheduler(Config{
		Interval: 200 * time.Millisecond,
		OnTick:   func(ctx context.Context) { ticks.Add(1) },
	})

	s.Start(context.Background())
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, ticks.Load(), "no tick before the first interval")

	require.Eventually(t, func() bool { return ticks.Load() >= 1 }, time.Second, 10*time.Millisecond)
}

func TestSchedulerTicksRepeatedly(t *testing.T) {
	var ticks atomic.Int32
	s := NewScheduler(Config{
		Interval: 10 * time.Millisecond,
		OnTick:   func(ctx context.Context) { ticks.Add(1) },
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.GreaterOrEqual(t, s.Stats().Ticks, uint64(3))
	assert.False(t, s.Stats().LastTick.IsZero())
}

func TestSchedulerNeverOverlaps(t *testing.T) {
	var running, overlaps, ticks atomic.Int32
	s := NewScheduler(Config{
		Interval: time.Millisecond,
		OnTick: func(ctx context.Context) {
			if running.Add(1) > 1 {
				overlaps.Add(1)
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			ticks.Add(1)
		},
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return ticks.Load() >= 5 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	assert.Zero(t, overlaps.Load())
}

func TestSchedulerStopWaitsForRunningTick(t *testing.T) {
	entered := make(chan struct{})
	var finished atomic.Bool
	var tickCtxErr atomic.Value

	s := NewScheduler(Config{
		Interval: time.Millisecond,
		OnTick: func(ctx context.Context) {
			select {
			case <-entered:
				return
			default:
				close(entered)
			}
			time.Sleep(50 * time.Millisecond)
			if ctx.Err() != nil {
				tickCtxErr.Store(ctx.Err())
			}
			finished.Store(true)
		},
	})

	s.Start(context.Background())
	<-entered
	s.Stop()

	assert.True(t, finished.Load(), "Stop returned before the tick completed")
	assert.Nil(t, tickCtxErr.Load(), "tick context must survive Stop")
}

func TestSchedulerNoTickAfterStop(t *testing.T) {
	var ticks atomic.Int32
	s := NewScheduler(Config{
		Interval: 5 * time.Millisecond,
		OnTick:   func(ctx context.Context) { ticks.Add(1) },
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return ticks.Load() >= 1 }, time.Second, time.Millisecond)
	s.Stop()

	after := ticks.Load()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())
}

func TestSchedulerStopIdempotent(t *testing.T) {
	s := NewScheduler(Config{Interval: time.Hour, OnTick: func(ctx context.Context) {}})

	s.Stop() // before Start
	s.Start(context.Background())
	s.Start(context.Background())

	done := make(chan struct{})
	go func() {
		s.Stop()
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a pending delay")
	}
}

func TestSchedulerParentCancel(t *testing.T) {
	var ticks atomic.Int32
	s := NewScheduler(Config{
		Interval: 5 * time.Millisecond,
		OnTick:   func(ctx context.Context) { ticks.Add(1) },
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	cancel()
	s.Stop()

	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ticks.Load())
}

func TestSchedulerRecoversPanics(t *testing.T) {
	var ticks atomic.Int32
	s := NewScheduler(Config{
		Interval: 5 * time.Millisecond,
		OnTick: func(ctx context.Context) {
			if ticks.Add(1) == 1 {
				panic("first tick fails")
			}
		},
	})

	s.Start(context.Background())
	require.Eventually(t, func() bool { return ticks.Load() >= 2 }, time.Second, time.Millisecond)
	s.Stop()

	assert.Equal(t, uint64(1), s.Stats().Panics)
}

func TestSchedulerTickTimeout(t *testing.T) {
	deadline := make(chan bool, 1)
	s := NewScheduler(Config{
		Interval: 5 * time.Millisecond,
		Timeout:  20 * time.Millisecond,
		OnTick: func(ctx context.Context) {
			_, ok := ctx.Deadline()
			select {
			case deadline <- ok:
			default:
			}
		},
	})

	s.Start(context.Background())
	defer s.Stop()

	select {
	case ok := <-deadline:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("no tick")
	}
}

func TestNewSchedulerDefaults(t *testing.T) {
	s := NewScheduler(Config{OnTick: func(ctx context.Context) {}})
	assert.Equal(t, time.Minute, s.Stats().Interval)
}
