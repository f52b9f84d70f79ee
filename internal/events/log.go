package events

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketflow/internal/models"
)

// LogSink writes each event as a structured log line. It is the default
// processor when nothing else is configured.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink builds a sink on the global logger.
func NewLogSink() *LogSink {
	return &LogSink{log: log.With().Str("component", "event_sink").Logger()}
}

// Process logs every event.
func (s *LogSink) Process(_ context.Context, events []models.Event) error {
	for i := range events {
		ev := &events[i]
		e := s.log.Info().
			Str("kind", string(ev.Kind)).
			Str("ticker", ev.Ticker).
			Float64("price", ev.Price).
			Float64("time", ev.Time)
		if ev.Direction != "" {
			e = e.Str("direction", ev.Direction)
		}
		if ev.Channel != "" {
			e = e.Str("channel", ev.Channel)
		}
		if len(ev.Fields) > 0 {
			e = e.Fields(ev.Fields)
		}
		e.Msg("event")
	}
	return nil
}

// Close is a no-op.
func (s *LogSink) Close() error { return nil }
