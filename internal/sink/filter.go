package sink

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"opsmon/internal/logger"
	"opsmon/internal/metrics"
	"opsmon/internal/models"
	"opsmon/internal/state"
)

// Filter forwards only entries carrying one of the allowed tags. A
// transition that differs from the last one delivered for the same host and
// metric is always forwarded; a repeat of the same transition is forwarded at
// most once per interval.
type Filter struct {
	next    Sink
	allow   []string
	every   time.Duration
	limiter state.Limiter

	mu   sync.Mutex
	last map[string]models.Transition
}

// NewFilter wraps next. An empty allow list forwards every tag; a zero
// interval or nil limiter disables the resend window.
func NewFilter(next Sink, allow []string, every time.Duration, limiter state.Limiter) *Filter {
	return &Filter{
		next:    next,
		allow:   allow,
		every:   every,
		limiter: limiter,
		last:    make(map[string]models.Transition),
	}
}

func (f *Filter) Name() string { return "filter:" + nameOf(f.next) }

func (f *Filter) Emit(ctx context.Context, entry models.Entry) error {
	if !f.allowed(entry) {
		return nil
	}

	metric := metricKey(entry)
	changed := false
	if ev := entry.Event; ev != nil {
		f.mu.Lock()
		prev, seen := f.last[metric]
		f.mu.Unlock()
		changed = seen && prev != ev.Transition
	}

	if f.limiter != nil && f.every > 0 {
		ok, err := f.limiter.Allow(ctx, resendKey(entry), f.every)
		switch {
		case err != nil:
			// fail open: deliver when the limiter cannot answer
			log := logger.WithComponent("sink")
			log.Warn().Err(err).Msg("resend limiter unavailable")
		case !ok && !changed:
			metrics.SinkRateLimited.WithLabelValues(nameOf(f.next)).Inc()
			return nil
		}
	}

	if err := f.next.Emit(ctx, entry); err != nil {
		return err
	}

	if ev := entry.Event; ev != nil {
		f.mu.Lock()
		f.last[metric] = ev.Transition
		f.mu.Unlock()
	}
	return nil
}

func (f *Filter) Close() error {
	var err error
	if f.limiter != nil {
		err = f.limiter.Close()
	}
	if cerr := f.next.Close(); cerr != nil {
		return cerr
	}
	return err
}

func (f *Filter) allowed(entry models.Entry) bool {
	if len(f.allow) == 0 {
		return true
	}
	for _, t := range f.allow {
		if entry.HasTag(t) {
			return true
		}
	}
	return false
}

// metricKey identifies a host and metric, e.g. "web-1:memory"
func metricKey(entry models.Entry) string {
	if ev := entry.Event; ev != nil {
		return fmt.Sprintf("%s:%s", ev.Hostname, ev.Kind)
	}
	return strings.Join(entry.Tags, ":")
}

// resendKey identifies a metric and transition, e.g. "web-1:memory:warning"
func resendKey(entry models.Entry) string {
	if ev := entry.Event; ev != nil {
		return metricKey(entry) + ":" + ev.Transition.String()
	}
	return strings.Join(entry.Tags, ":")
}
