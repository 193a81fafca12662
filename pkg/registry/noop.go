package registry

import (
	"context"
	"log/slog"
)

// NoopEventSink is a no-operation implementation of EventSink
// Useful for production when you don't need event handling or for testing
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// Publish does nothing and returns nil
func (n *NoopEventSink) Publish(ctx context.Context, event Event) error {
	return nil
}

// LoggingEventSink is an event sink that logs events but takes no other action
// Useful for development and debugging
type LoggingEventSink struct {
	logger *slog.Logger
}

// NewLoggingEventSink creates a new logging event sink. A nil logger falls
// back to slog.Default.
func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

// Publish logs the event
func (l *LoggingEventSink) Publish(ctx context.Context, event Event) error {
	l.logger.Info("registry event",
		"event_id", event.ID,
		"kind", event.Kind,
		"message_id", event.MessageID,
		"actor", event.Actor,
		"payload", event.Payload,
	)
	return nil
}
