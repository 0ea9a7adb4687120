package events

import (
	"context"
	"log/slog"
)

// LogSink writes each event as a structured log line.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, ev Event) error {
	s.logger.InfoContext(ctx, "registry event",
		"event_id", ev.ID,
		"event_type", ev.Type,
		"caller", ev.Caller,
		"target", ev.Target,
		"data", string(ev.Data),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }
