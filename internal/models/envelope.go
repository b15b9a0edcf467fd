package models

import (
	"time"

	"github.com/google/uuid"
)

// Envelope wraps an Entry with delivery metadata for the event stream
type Envelope struct {
	ID    string `json:"id"`
	Entry Entry  `json:"entry"`

	EmittedAt    time.Time `json:"emitted_at"`
	Host         string    `json:"host"`
	PartitionKey string    `json:"partition_key"`
}

// NewEnvelope creates a new envelope for entry emitted from host
func NewEnvelope(entry Entry, host string) *Envelope {
	id := uuid.New().String()
	if entry.Event != nil && entry.Event.ID != "" {
		id = entry.Event.ID
	}
	return &Envelope{
		ID:           id,
		Entry:        entry,
		EmittedAt:    time.Now().UTC(),
		Host:         host,
		PartitionKey: host, // per-host ordering
	}
}

// Kind returns the metric named by the entry tags, or "" for host-level entries
func (e *Envelope) Kind() string {
	if e.Entry.Event != nil {
		return e.Entry.Event.Kind.String()
	}
	for _, t := range e.Entry.Tags {
		if _, err := ParseMetricKind(t); err == nil {
			return t
		}
	}
	return ""
}
