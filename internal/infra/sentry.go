package infra

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global Sentry client. An empty DSN leaves Sentry
// disabled and every capture a no-op.
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

// FlushSentry waits briefly for buffered events to be sent.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// SentryReporter forwards login integrity violations to Sentry.
type SentryReporter struct {
	logger *slog.Logger
}

// NewSentryReporter builds a reporter.
func NewSentryReporter(logger *slog.Logger) *SentryReporter {
	return &SentryReporter{logger: logger}
}

// ReportIntegrity captures err with tags as a warning-level Sentry event.
func (r *SentryReporter) ReportIntegrity(_ context.Context, err error, tags map[string]string) {
	var id *sentry.EventID
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelWarning)
		scope.SetTag("kind", "login_integrity")
		scope.SetTags(tags)
		id = sentry.CaptureException(err)
	})
	if id != nil {
		r.logger.Debug("integrity violation reported", slog.String("sentry_event_id", string(*id)))
	}
}

// CapturePanic reports a recovered panic.
func CapturePanic(recovered any, stack []byte, tags map[string]string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		scope.SetExtra("panic", fmt.Sprint(recovered))
		scope.SetExtra("stack", string(stack))
		sentry.CaptureMessage("panic in request")
	})
}
