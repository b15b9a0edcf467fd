package state

import (
	"sync"
	"time"

	"opsmon/internal/models"
)

// Failure records why a metric could not be read
type Failure struct {
	Reason string    `json:"reason"`
	Error  string    `json:"error"`
	At     time.Time `json:"at"`
}

// Status is a point-in-time view of the monitor
type Status struct {
	Host       string                               `json:"host"`
	HostLabel  string                               `json:"host_label,omitempty"`
	StartedAt  time.Time                            `json:"started_at"`
	LastCycle  time.Time                            `json:"last_cycle"`
	Cycles     uint64                               `json:"cycles"`
	Thresholds map[models.MetricKind]float64        `json:"thresholds"`
	Readings   map[models.MetricKind]models.Reading `json:"readings"`
	Exceeded   map[models.MetricKind]bool           `json:"exceeded"`
	Failures   map[models.MetricKind]Failure        `json:"failures,omitempty"`
}

// Store holds the latest Status. It is written by the evaluator once per
// cycle and read by HTTP handlers; both sides only ever see copies.
type Store struct {
	mu     sync.RWMutex
	status Status
}

// NewStore creates a store seeded with the static host description
func NewStore(host, label string, thresholds models.Thresholds) *Store {
	limits := make(map[models.MetricKind]float64, models.NumKinds)
	for _, k := range models.Kinds() {
		if thresholds.Enabled(k) {
			limits[k] = thresholds.Limit(k)
		}
	}
	return &Store{status: Status{
		Host:       host,
		HostLabel:  label,
		StartedAt:  time.Now().UTC(),
		Thresholds: limits,
		Readings:   map[models.MetricKind]models.Reading{},
		Exceeded:   map[models.MetricKind]bool{},
	}}
}

// Update records the outcome of one cycle
func (s *Store) Update(at time.Time, readings []models.Reading, exceeded map[models.MetricKind]bool, failures map[models.MetricKind]Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.status.Cycles++
	s.status.LastCycle = at
	for _, r := range readings {
		s.status.Readings[r.Kind] = r
	}
	s.status.Exceeded = make(map[models.MetricKind]bool, len(exceeded))
	for k, v := range exceeded {
		s.status.Exceeded[k] = v
	}
	s.status.Failures = make(map[models.MetricKind]Failure, len(failures))
	for k, v := range failures {
		s.status.Failures[k] = v
	}
}

// Snapshot returns a deep copy of the current status
func (s *Store) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := s.status
	out.Thresholds = copyMap(s.status.Thresholds)
	out.Readings = copyMap(s.status.Readings)
	out.Exceeded = copyMap(s.status.Exceeded)
	out.Failures = copyMap(s.status.Failures)
	return out
}

func copyMap[K comparable, V any](in map[K]V) map[K]V {
	if in == nil {
		return nil
	}
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
