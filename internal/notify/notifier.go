package notify

import (
	"context"
	"log/slog"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

// Enqueuer hands a notification to the background worker.
type Enqueuer interface {
	EnqueueNotification(ctx context.Context, n requisition.Notification) error
}

// QueueNotifier defers delivery to the worker's notification:deliver task.
type QueueNotifier struct {
	queue Enqueuer
}

// NewQueueNotifier constructs a QueueNotifier.
func NewQueueNotifier(queue Enqueuer) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

// Notify enqueues n.
func (q *QueueNotifier) Notify(ctx context.Context, n requisition.Notification) error {
	return q.queue.EnqueueNotification(ctx, n)
}

// LogNotifier writes notifications to the log. Useful in development.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs n at info level.
func (l *LogNotifier) Notify(ctx context.Context, n requisition.Notification) error {
	l.logger.InfoContext(ctx, "notification",
		slog.String("recipient", n.Recipient),
		slog.String("title", n.Title),
		slog.String("requisition", n.RelatedID),
		slog.String("severity", string(n.Severity)),
		slog.String("body", n.Body))
	return nil
}

// Fanout sends to every notifier and returns the first error.
type Fanout []requisition.Notifier

// Notify implements requisition.Notifier.
func (f Fanout) Notify(ctx context.Context, n requisition.Notification) error {
	var first error
	for _, notifier := range f {
		if err := notifier.Notify(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}
