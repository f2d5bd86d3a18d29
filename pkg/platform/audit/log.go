package audit

import (
	"context"
	"log/slog"
)

// Log writes each event as a structured log record. It is the sink when no
// broker is configured and retains nothing.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "audit")}
}

func (l *Log) Deliver(ctx context.Context, events []Event) error {
	for _, e := range events {
		l.logger.LogAttrs(ctx, slog.LevelInfo, "audit event",
			slog.String("action", string(e.Action)),
			slog.Time("timestamp", e.Timestamp),
			slog.String("proposal_id", e.ProposalID.String()),
			slog.String("learner_id", e.LearnerID.String()),
			slog.String("tenant_id", e.TenantID.String()),
			slog.String("subject", string(e.Subject)),
			slog.Int("from_level", e.FromLevel),
			slog.Int("to_level", e.ToLevel),
			slog.String("direction", e.Direction),
			slog.String("actor_id", e.ActorID),
			slog.String("notes", e.Notes),
			slog.String("request_id", e.RequestID),
		)
	}
	return nil
}
