package sink

import (
	"context"

	"github.com/rs/zerolog"

	"opsmon/internal/models"
)

// Console writes entries as structured log lines
type Console struct {
	log zerolog.Logger
}

func NewConsole(log zerolog.Logger) *Console {
	return &Console{log: log}
}

func (c *Console) Name() string { return "console" }

// Emit logs warnings at warn level, errors at error level and everything else at info
func (c *Console) Emit(ctx context.Context, entry models.Entry) error {
	var ev *zerolog.Event
	switch {
	case entry.HasTag(models.TagError):
		ev = c.log.Error()
	case entry.HasTag(models.TagWarning):
		ev = c.log.Warn()
	default:
		ev = c.log.Info()
	}

	ev = ev.Strs("tags", entry.Tags)
	if !entry.Time.IsZero() {
		ev = ev.Time("at", entry.Time)
	}
	if entry.Event != nil {
		ev = ev.Str("event_id", entry.Event.ID).
			Str("metric", entry.Event.Kind.String()).
			Float64("value", entry.Event.Value).
			Float64("limit", entry.Event.Limit)
	}
	if len(entry.Fields) > 0 {
		ev = ev.Fields(entry.Fields)
	}
	ev.Msg(entry.Text())
	return nil
}

func (c *Console) Close() error { return nil }
