package notify

import (
	"context"
	"log/slog"

	"github.com/yogaflow/attendance/internal/models"
)

// InboxStore persists notifications for later reading
type InboxStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// InboxSink stores every message in the recipient's inbox
type InboxSink struct {
	store InboxStore
}

func NewInboxSink(store InboxStore) *InboxSink {
	return &InboxSink{store: store}
}

func (s *InboxSink) Name() string { return "inbox" }

func (s *InboxSink) Send(ctx context.Context, msg Message) error {
	return s.store.CreateNotification(ctx, &models.Notification{
		Username:  msg.Target,
		Title:     msg.Title,
		Message:   msg.Body,
		Kind:      msg.Kind,
		CreatedAt: msg.SentAt,
	})
}

// LogSink writes messages to the structured log
type LogSink struct {
	log *slog.Logger
}

func NewLogSink(log *slog.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, msg Message) error {
	s.log.InfoContext(ctx, "notification",
		slog.String("target", msg.Target),
		slog.String("title", msg.Title),
		slog.String("kind", msg.Kind),
	)
	return nil
}
