package models

import (
	"errors"
	"strings"
	"time"
)

// MetricKind identifies one independently monitored host metric
type MetricKind int

const (
	Memory MetricKind = iota
	CpuOneMinute
	CpuFiveMinute
	CpuFifteenMinute
	DiskSpace
	Inodes

	// NumKinds is the number of declared kinds
	NumKinds
)

// ErrUnknownMetric is returned when a metric name does not match any kind
var ErrUnknownMetric = errors.New("unknown metric kind")

var kindNames = [NumKinds]string{
	Memory:           "memory",
	CpuOneMinute:     "cpu-one-minute",
	CpuFiveMinute:    "cpu-five-minute",
	CpuFifteenMinute: "cpu-fifteen-minute",
	DiskSpace:        "disk",
	Inodes:           "inodes",
}

// Kinds returns every metric kind in evaluation order:
// memory, cpu (one/five/fifteen), disk, inodes.
func Kinds() []MetricKind {
	return []MetricKind{Memory, CpuOneMinute, CpuFiveMinute, CpuFifteenMinute, DiskSpace, Inodes}
}

func (k MetricKind) String() string {
	if !k.IsValid() {
		return "unknown"
	}
	return kindNames[k]
}

// IsValid reports whether k is one of the declared kinds
func (k MetricKind) IsValid() bool {
	return k >= 0 && k < NumKinds
}

// IsCPU reports whether k is one of the load-average kinds
func (k MetricKind) IsCPU() bool {
	return k == CpuOneMinute || k == CpuFiveMinute || k == CpuFifteenMinute
}

// MarshalText encodes the kind by name so it can key JSON maps.
func (k MetricKind) MarshalText() ([]byte, error) {
	if !k.IsValid() {
		return nil, ErrUnknownMetric
	}
	return []byte(k.String()), nil
}

func (k *MetricKind) UnmarshalText(b []byte) error {
	kind, err := ParseMetricKind(string(b))
	if err != nil {
		return err
	}
	*k = kind
	return nil
}

// ParseMetricKind resolves a metric name, ignoring case and surrounding spaces
func ParseMetricKind(name string) (MetricKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range kindNames {
		if n == name {
			return MetricKind(i), nil
		}
	}
	return 0, ErrUnknownMetric
}

// Reading is one normalized sample taken during a cycle.
// Memory and disk are percent used, cpu kinds are raw load averages and
// inodes is the used fraction of the partition.
type Reading struct {
	Kind      MetricKind `json:"kind"`
	Value     float64    `json:"value"`
	Partition string     `json:"partition,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Thresholds holds the limit for every kind. A limit <= 0 disables the kind.
type Thresholds [NumKinds]float64

// Limit returns the configured limit for kind
func (t Thresholds) Limit(kind MetricKind) float64 {
	if !kind.IsValid() {
		return 0
	}
	return t[kind]
}

// Enabled reports whether kind is monitored
func (t Thresholds) Enabled(kind MetricKind) bool {
	return t.Limit(kind) > 0
}

// With returns a copy of t with the limit for kind replaced
func (t Thresholds) With(kind MetricKind, limit float64) Thresholds {
	if kind.IsValid() {
		t[kind] = limit
	}
	return t
}

// AnyCPU reports whether at least one load-average kind is monitored
func (t Thresholds) AnyCPU() bool {
	return t.Enabled(CpuOneMinute) || t.Enabled(CpuFiveMinute) || t.Enabled(CpuFifteenMinute)
}
