package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"opsmon/internal/logger"
	"opsmon/internal/metrics"
)

// TickFunc is one unit of scheduled work
type TickFunc func(ctx context.Context)

// Scheduler runs a tick after a fixed delay, then waits the same delay again
// after the tick returns. Ticks never overlap.
type Scheduler struct {
	interval time.Duration
	timeout  time.Duration
	onTick   TickFunc

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Metrics
	ticks    atomic.Uint64
	panics   atomic.Uint64
	lastTick atomic.Int64
}

// Config holds scheduler configuration
type Config struct {
	Interval time.Duration
	// Timeout bounds a single tick; 0 leaves it unbounded
	Timeout time.Duration
	OnTick  TickFunc
}

// NewScheduler creates a scheduler. A non-positive interval falls back to one minute.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Scheduler{
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		onTick:   cfg.OnTick,
	}
}

// Start launches the schedule. The first tick runs one interval from now.
// Calling Start more than once has no effect.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	log := logger.WithComponent("scheduler")
	log.Info().
		Dur("interval", s.interval).
		Dur("timeout", s.timeout).
		Msg("starting scheduler")

	go s.loop(ctx, s.done)
}

// Stop cancels the pending delay and waits for a running tick to finish.
// No tick starts after Stop returns. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	log := logger.WithComponent("scheduler")
	defer log.Info().Msg("scheduler stopped")

	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		// A stop that raced the timer wins
		if ctx.Err() != nil {
			return
		}

		s.runTick(ctx)
		timer.Reset(s.interval)
	}
}

// runTick invokes onTick with a context that survives Stop, so in-flight
// reads complete naturally, bounded by the tick timeout.
func (s *Scheduler) runTick(parent context.Context) {
	log := logger.WithComponent("scheduler")

	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("tick panic recovered")
			metrics.PanicsRecovered.WithLabelValues("scheduler").Inc()
		}
	}()

	ctx := context.WithoutCancel(parent)
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.ticks.Add(1)
	s.lastTick.Store(time.Now().UnixNano())
	s.onTick(ctx)
}

// Stats returns scheduler statistics
func (s *Scheduler) Stats() Stats {
	st := Stats{
		Interval: s.interval,
		Ticks:    s.ticks.Load(),
		Panics:   s.panics.Load(),
	}
	if ns := s.lastTick.Load(); ns > 0 {
		st.LastTick = time.Unix(0, ns).UTC()
	}
	return st
}

// Stats holds scheduler metrics
type Stats struct {
	Interval time.Duration `json:"interval"`
	Ticks    uint64        `json:"ticks"`
	Panics   uint64        `json:"panics"`
	LastTick time.Time     `json:"last_tick"`
}
