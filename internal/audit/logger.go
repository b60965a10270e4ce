package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/picoauth/picoauth/internal/clock"
)

// Logger records failed login attempts for later audit.
type Logger struct {
	repo   Repository
	clock  clock.Clock
	logger *slog.Logger
}

// NewLogger builds a failed-event logger.
func NewLogger(repo Repository, clk clock.Clock, logger *slog.Logger) *Logger {
	if clk == nil {
		clk = clock.System()
	}
	return &Logger{repo: repo, clock: clk, logger: logger}
}

// Record appends a failure. Storage errors are logged, never returned.
func (l *Logger) Record(ctx context.Context, subject Subject, reason string, evidence []byte) {
	if subject.UserID == "" && subject.SessionID == "" {
		l.logger.Warn("failed event without subject", slog.String("reason", reason))
		return
	}
	event := Event{
		ID:         uuid.NewString(),
		UserID:     subject.UserID,
		SessionID:  subject.SessionID,
		OccurredAt: l.clock.Now(),
		Reason:     reason,
		Evidence:   evidence,
	}
	if err := l.repo.Append(ctx, event); err != nil {
		l.logger.Error("record failed event",
			slog.String("user_id", subject.UserID),
			slog.String("session_id", subject.SessionID),
			slog.String("reason", reason),
			slog.Any("error", err),
		)
		return
	}
	l.logger.Info("failed login event",
		slog.String("event_id", event.ID),
		slog.String("user_id", subject.UserID),
		slog.String("session_id", subject.SessionID),
		slog.String("reason", reason),
		slog.Bool("evidence", len(evidence) > 0),
	)
}

// Query lists recorded events matching filter.
func (l *Logger) Query(ctx context.Context, filter Filter) ([]Event, error) {
	return l.repo.List(ctx, filter)
}
