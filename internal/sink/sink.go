// Package sink delivers monitor entries to their destinations.
package sink

import (
	"context"
	"errors"
	"fmt"

	"opsmon/internal/logger"
	"opsmon/internal/metrics"
	"opsmon/internal/models"
)

// Sink receives every entry the monitor produces.
// Delivery failures are returned but never stop the monitor.
type Sink interface {
	Emit(ctx context.Context, entry models.Entry) error
	Close() error
}

// Named is implemented by sinks that label their own metrics
type Named interface {
	Name() string
}

// Multi fans an entry out to several sinks
type Multi struct {
	sinks []Sink
}

// NewMulti creates a fan-out sink. Nil sinks are skipped.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

// Emit delivers entry to every sink, even when an earlier one fails
func (m *Multi) Emit(ctx context.Context, entry models.Entry) error {
	var errs []error
	for _, s := range m.sinks {
		name := nameOf(s)
		if err := s.Emit(ctx, entry); err != nil {
			metrics.SinkEmitsTotal.WithLabelValues(name, "failed").Inc()
			log := logger.WithComponent("sink")
			log.Warn().
				Err(err).
				Str("sink", name).
				Strs("tags", entry.Tags).
				Msg("failed to deliver entry")
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		metrics.SinkEmitsTotal.WithLabelValues(name, "success").Inc()
	}
	return errors.Join(errs...)
}

// Close closes every sink
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", nameOf(s), err))
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of wrapped sinks
func (m *Multi) Len() int { return len(m.sinks) }

func nameOf(s Sink) string {
	if n, ok := s.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", s)
}
