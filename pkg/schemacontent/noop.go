package schemacontent

import (
	"context"

	"go.uber.org/zap"
)

// NoopEventSink is a no-operation implementation of EventSink
type NoopEventSink struct{}

// NewNoopEventSink creates a new no-operation event sink
func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

// ContentCreated does nothing and returns nil
func (n *NoopEventSink) ContentCreated(ctx context.Context, item *ContentItem) error {
	return nil
}

// ContentUpdated does nothing and returns nil
func (n *NoopEventSink) ContentUpdated(ctx context.Context, item *ContentItem) error {
	return nil
}

// ContentStatusChanged does nothing and returns nil
func (n *NoopEventSink) ContentStatusChanged(ctx context.Context, item *ContentItem, previous Status) error {
	return nil
}

// LoggingEventSink writes lifecycle events to a zap logger.
type LoggingEventSink struct {
	logger *zap.Logger
}

// NewLoggingEventSink creates an event sink that logs at info level.
func NewLoggingEventSink(logger *zap.Logger) EventSink {
	return &LoggingEventSink{logger: logger.Named("events")}
}

func (l *LoggingEventSink) ContentCreated(ctx context.Context, item *ContentItem) error {
	l.logger.Info("content created", itemFields(item)...)
	return nil
}

func (l *LoggingEventSink) ContentUpdated(ctx context.Context, item *ContentItem) error {
	l.logger.Info("content updated", itemFields(item)...)
	return nil
}

func (l *LoggingEventSink) ContentStatusChanged(ctx context.Context, item *ContentItem, previous Status) error {
	l.logger.Info("content status changed",
		append(itemFields(item), zap.String("previous_status", string(previous)))...)
	return nil
}

func itemFields(item *ContentItem) []zap.Field {
	return []zap.Field{
		zap.Stringer("app_id", item.AppID),
		zap.Stringer("schema_id", item.SchemaID),
		zap.Stringer("content_id", item.ID),
		zap.Int64("version", item.Version),
		zap.String("status", string(item.Status)),
	}
}
