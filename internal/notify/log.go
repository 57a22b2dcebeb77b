package notify

import (
	"context"
	"log/slog"
)

// LogSink writes events to the structured log. It is the default sink when
// no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(ctx context.Context, event Event) error {
	s.logger.InfoContext(ctx, "notification",
		"type", string(event.Type),
		"donation_id", event.DonationID,
		"draft_id", event.DraftID,
		"project_id", event.ProjectID,
		"status", event.Status,
		"amount", event.Amount,
		"method", event.Method,
	)
	return nil
}
