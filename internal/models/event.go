package models

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Transition is a change between the normal and warning state of one metric
type Transition int

const (
	Warning Transition = iota + 1
	Restored
)

func (t Transition) String() string {
	switch t {
	case Warning:
		return TagWarning
	case Restored:
		return TagRestored
	default:
		return "none"
	}
}

func (t Transition) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ErrUnknownTransition is returned when decoding a name other than warning or restored
var ErrUnknownTransition = errors.New("unknown transition")

func (t *Transition) UnmarshalText(b []byte) error {
	switch string(b) {
	case TagWarning:
		*t = Warning
	case TagRestored:
		*t = Restored
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransition, b)
	}
	return nil
}

// Entry tags
const (
	TagOps      = "ops"
	TagInfo     = "info"
	TagWarning  = "warning"
	TagRestored = "restored"
	TagError    = "error"
	TagStartup  = "startup"
	TagCPU      = "cpu"
)

// Event is a reportable threshold transition for one metric
type Event struct {
	ID         string     `json:"id"`
	Kind       MetricKind `json:"kind"`
	Transition Transition `json:"transition"`
	Value      float64    `json:"value"`
	Limit      float64    `json:"limit"`
	Partition  string     `json:"partition,omitempty"`
	HostLabel  string     `json:"host_label,omitempty"`
	Hostname   string     `json:"hostname,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// NewEvent builds an Event for a reading that crossed its limit
func NewEvent(r Reading, tr Transition, limit float64) *Event {
	return &Event{
		ID:         uuid.New().String(),
		Kind:       r.Kind,
		Transition: tr,
		Value:      r.Value,
		Limit:      limit,
		Partition:  r.Partition,
		Timestamp:  r.Timestamp,
	}
}

// Message renders the human readable notification for the event
func (e *Event) Message() string {
	v, l := num(e.Value), num(e.Limit)
	switch e.Kind {
	case Memory:
		if e.Transition == Warning {
			return fmt.Sprintf("Using %s%% of memory, exceeds threshold of %s%%", v, l)
		}
		return fmt.Sprintf("Memory usage of %s%% has dropped below the redline of %s%% and is now normal", v, l)
	case DiskSpace:
		if e.Transition == Warning {
			return fmt.Sprintf("Using %s%% of disk space, exceeds threshold of %s%%", v, l)
		}
		return fmt.Sprintf("Disk usage of %s%% has dropped below the redline of %s%% and is now normal", v, l)
	case Inodes:
		if e.Transition == Warning {
			return fmt.Sprintf("Using %.3f of filesystem inodes on partition %s, exceeds threshold of %s", e.Value, e.Partition, l)
		}
		return fmt.Sprintf("Inode usage of %.3f on partition %s has dropped below the redline of %s and is now normal", e.Value, e.Partition, l)
	default:
		if e.Transition == Warning {
			return fmt.Sprintf("Average %s CPU load of %.3f, exceeds threshold of %s", cpuWindow(e.Kind), e.Value, l)
		}
		return fmt.Sprintf("Average %s CPU load of %.3f has dropped below threshold of %s", cpuWindow(e.Kind), e.Value, l)
	}
}

// Tags returns the sink tags for the event
func (e *Event) Tags() []string {
	return MetricTags(e.Kind, e.Transition.String())
}

// ReadingMessage renders the verbose informational line for a reading
func ReadingMessage(r Reading) string {
	switch r.Kind {
	case Memory:
		return fmt.Sprintf("Using %s%% of memory", num(r.Value))
	case DiskSpace:
		return fmt.Sprintf("Using %s%% of available disk space", num(r.Value))
	case Inodes:
		return fmt.Sprintf("Using %s%% of inodes on partition %s", num(math.Round(r.Value*10000)/100), r.Partition)
	default:
		return fmt.Sprintf("Average %s CPU load of %.3f", cpuWindow(r.Kind), r.Value)
	}
}

// MetricTags builds the tag set for an entry about kind
func MetricTags(kind MetricKind, extra ...string) []string {
	tags := []string{TagOps}
	if kind.IsCPU() {
		tags = append(tags, TagCPU)
	}
	tags = append(tags, kind.String())
	return append(tags, extra...)
}

func cpuWindow(k MetricKind) string {
	switch k {
	case CpuFiveMinute:
		return "5-min"
	case CpuFifteenMinute:
		return "15-min"
	default:
		return "1-min"
	}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Entry is the unit handed to a sink
type Entry struct {
	Tags    []string       `json:"tags"`
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Event   *Event         `json:"event,omitempty"`
	Time    time.Time      `json:"time"`
}

// HasTag reports whether the entry carries tag
func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Text returns the message, falling back to the tag list for structured entries
func (e Entry) Text() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprint(e.Tags)
}

// TransitionEntry wraps an event for delivery
func TransitionEntry(ev *Event) Entry {
	return Entry{
		Tags:    ev.Tags(),
		Message: ev.Message(),
		Event:   ev,
		Time:    ev.Timestamp,
	}
}

// InfoEntry wraps a verbose reading for delivery
func InfoEntry(r Reading) Entry {
	return Entry{
		Tags:    MetricTags(r.Kind, TagInfo),
		Message: ReadingMessage(r),
		Time:    r.Timestamp,
	}
}

// ErrorEntry reports a failed read. reason distinguishes io, not-found and parse failures.
func ErrorEntry(kind MetricKind, reason string, err error, at time.Time) Entry {
	return Entry{
		Tags:    MetricTags(kind, TagError, reason),
		Message: err.Error(),
		Time:    at,
	}
}
