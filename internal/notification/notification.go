package notification

import (
	"context"
	"log/slog"
)

// Subscription delivers wake-ups for one topic. A wake-up carries no payload:
// receivers re-read the state they care about from its source of truth.
type Subscription interface {
	C() <-chan struct{}
	Close() error
}

// Broker fans wake-ups out to every live subscription of a topic.
type Broker interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// LoggingBroker decorates a Broker with debug logging of publications.
type LoggingBroker struct {
	Broker
	logger *slog.Logger
}

// NewLoggingBroker wraps next.
func NewLoggingBroker(next Broker, logger *slog.Logger) *LoggingBroker {
	return &LoggingBroker{Broker: next, logger: logger}
}

// Publish forwards to the wrapped broker and logs the outcome.
func (b *LoggingBroker) Publish(ctx context.Context, topic string) error {
	err := b.Broker.Publish(ctx, topic)
	if err != nil {
		b.logger.Warn("notification publish failed", slog.String("topic", topic), slog.Any("error", err))
		return err
	}
	b.logger.Debug("notification published", slog.String("topic", topic))
	return nil
}
