// Package evaluator runs one polling cycle: read every enabled metric,
// normalize it, apply hysteresis and hand the resulting entries to the sink.
package evaluator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"opsmon/internal/alerts"
	"opsmon/internal/logger"
	"opsmon/internal/metrics"
	"opsmon/internal/models"
	"opsmon/internal/sink"
	"opsmon/internal/source"
	"opsmon/internal/state"
)

// Config holds the evaluator inputs that stay fixed for the process lifetime
type Config struct {
	Thresholds models.Thresholds
	// Disk is the mount path checked for space usage
	Disk string
	// Partition is the filesystem or mount point checked for inode usage
	Partition string
	Verbose   bool
	HostLabel string
	Hostname  string
}

// Failure is a metric that could not be read in a cycle
type Failure struct {
	Kind   models.MetricKind
	Reason string
	Err    error
}

// Report summarizes one cycle
type Report struct {
	Started  time.Time
	Duration time.Duration
	Readings []models.Reading
	Events   []*models.Event
	Failures []Failure
}

// Evaluator owns the tracker state of one monitor
type Evaluator struct {
	cfg     Config
	source  source.Source
	sink    sink.Sink
	tracker *alerts.Tracker
	store   *state.Store
	now     func() time.Time
}

// New creates an evaluator with all metrics in the normal state. store may be nil.
func New(cfg Config, src source.Source, snk sink.Sink, store *state.Store) *Evaluator {
	return &Evaluator{
		cfg:     cfg,
		source:  src,
		sink:    snk,
		tracker: alerts.NewTracker(cfg.Thresholds),
		store:   store,
		now:     time.Now,
	}
}

type sample struct {
	reading models.Reading
	err     error
	read    bool
}

// RunCycle performs one complete cycle. Every fetch is awaited before any entry
// is emitted, and entries are emitted in metric order. Read failures are
// reported per metric and never stop the cycle.
func (e *Evaluator) RunCycle(ctx context.Context) Report {
	log := logger.WithComponent("evaluator")
	start := e.now()

	samples := e.fetch(ctx, start)

	report := Report{Started: start}
	failures := make(map[models.MetricKind]state.Failure)

	for _, kind := range models.Kinds() {
		s := samples[kind]
		if !s.read {
			continue
		}

		if s.err != nil {
			reason := source.Reason(s.err)
			report.Failures = append(report.Failures, Failure{Kind: kind, Reason: reason, Err: s.err})
			failures[kind] = state.Failure{Reason: reason, Error: s.err.Error(), At: start}
			metrics.ReadErrorsTotal.WithLabelValues(kind.String(), reason).Inc()

			log.Warn().Err(s.err).Str("metric", kind.String()).Str("reason", reason).Msg("metric read failed")
			e.emit(ctx, e.decorate(models.ErrorEntry(kind, reason, s.err, start)))
			continue
		}

		r := s.reading
		report.Readings = append(report.Readings, r)
		metrics.MetricValue.WithLabelValues(kind.String()).Set(r.Value)

		if e.cfg.Verbose {
			e.emit(ctx, e.decorate(models.InfoEntry(r)))
		}

		if tr, ok := e.tracker.Observe(r); ok {
			ev := models.NewEvent(r, tr, e.tracker.Limit(kind))
			ev.HostLabel = e.cfg.HostLabel
			ev.Hostname = e.cfg.Hostname
			report.Events = append(report.Events, ev)

			metrics.TransitionsTotal.WithLabelValues(kind.String(), tr.String()).Inc()
			e.emit(ctx, e.decorate(models.TransitionEntry(ev)))
		}
	}

	exceeded := e.tracker.Snapshot()
	for kind, on := range exceeded {
		v := 0.0
		if on {
			v = 1
		}
		metrics.ThresholdExceeded.WithLabelValues(kind.String()).Set(v)
	}

	report.Duration = e.now().Sub(start)
	metrics.CycleDuration.Observe(report.Duration.Seconds())
	metrics.CyclesTotal.Inc()

	if e.store != nil {
		e.store.Update(start, report.Readings, exceeded, failures)
	}

	log.Debug().
		Int("readings", len(report.Readings)).
		Int("events", len(report.Events)).
		Int("failures", len(report.Failures)).
		Dur("duration", report.Duration).
		Msg("cycle complete")

	return report
}

// fetch reads every enabled metric concurrently and waits for all of them
func (e *Evaluator) fetch(ctx context.Context, at time.Time) [models.NumKinds]sample {
	var out [models.NumKinds]sample
	th := e.cfg.Thresholds

	// each goroutine writes only its own slots
	var g errgroup.Group

	if th.Enabled(models.Memory) {
		g.Go(func() error {
			out[models.Memory] = e.readMemory(ctx, at)
			return nil
		})
	}

	if th.AnyCPU() {
		g.Go(func() error {
			loads := e.source.CPU(ctx)
			for i, kind := range []models.MetricKind{models.CpuOneMinute, models.CpuFiveMinute, models.CpuFifteenMinute} {
				if th.Enabled(kind) {
					out[kind] = sample{read: true, reading: models.Reading{Kind: kind, Value: loads[i], Timestamp: at}}
				}
			}
			return nil
		})
	}

	if th.Enabled(models.DiskSpace) {
		g.Go(func() error {
			out[models.DiskSpace] = e.readDisk(ctx, at)
			return nil
		})
	}

	if th.Enabled(models.Inodes) {
		g.Go(func() error {
			out[models.Inodes] = e.readInodes(ctx, at)
			return nil
		})
	}

	g.Wait()
	return out
}

func (e *Evaluator) readMemory(ctx context.Context, at time.Time) sample {
	m, err := e.source.Memory(ctx)
	if err != nil {
		return sample{read: true, err: fmt.Errorf("memory: %w", err)}
	}
	pct, err := models.UsedPercent(m.Free, m.Total)
	if err != nil {
		return sample{read: true, err: fmt.Errorf("memory: %w: %v", source.ErrParse, err)}
	}
	return sample{read: true, reading: models.Reading{Kind: models.Memory, Value: pct, Timestamp: at}}
}

func (e *Evaluator) readDisk(ctx context.Context, at time.Time) sample {
	d, err := e.source.Disk(ctx, e.cfg.Disk)
	if err != nil {
		return sample{read: true, err: fmt.Errorf("disk %s: %w", e.cfg.Disk, err)}
	}
	pct, err := models.UsedPercent(d.Free, d.Total)
	if err != nil {
		return sample{read: true, err: fmt.Errorf("disk %s: %w: %v", e.cfg.Disk, source.ErrParse, err)}
	}
	return sample{read: true, reading: models.Reading{Kind: models.DiskSpace, Value: pct, Partition: e.cfg.Disk, Timestamp: at}}
}

func (e *Evaluator) readInodes(ctx context.Context, at time.Time) sample {
	in, err := e.source.Inodes(ctx, e.cfg.Partition)
	if err != nil {
		return sample{read: true, err: fmt.Errorf("inodes: %w", err)}
	}
	return sample{read: true, reading: models.Reading{Kind: models.Inodes, Value: in.UsedFraction, Partition: in.Partition, Timestamp: at}}
}

func (e *Evaluator) decorate(entry models.Entry) models.Entry {
	if e.cfg.HostLabel == "" {
		return entry
	}
	if entry.Fields == nil {
		entry.Fields = map[string]any{}
	}
	entry.Fields["host_label"] = e.cfg.HostLabel
	return entry
}

func (e *Evaluator) emit(ctx context.Context, entry models.Entry) {
	if err := e.sink.Emit(ctx, entry); err != nil {
		log := logger.WithComponent("evaluator")
		log.Debug().Err(err).Strs("tags", entry.Tags).Msg("entry not fully delivered")
	}
}

// Exceeded returns the warning flags of every enabled metric.
// It must not be called while a cycle is running.
func (e *Evaluator) Exceeded() map[models.MetricKind]bool {
	return e.tracker.Snapshot()
}
