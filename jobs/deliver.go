package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/reqflow/internal/jobs"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Deliverer stores a notification where its recipient will see it.
type Deliverer interface {
	Deliver(ctx context.Context, n requisition.Notification) error
}

// DeliverJob handles TaskNotificationDeliver.
type DeliverJob struct {
	Inbox   Deliverer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDeliverJob wires dependencies for the delivery handler.
func NewDeliverJob(inbox Deliverer, logger *slog.Logger, metrics *jobmetrics.Metrics) *DeliverJob {
	return &DeliverJob{Inbox: inbox, Logger: logger, Metrics: metrics}
}

// Handle writes the notification carried by t.
func (j *DeliverJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Inbox == nil {
		return errors.New("notification deliver: handler not configured")
	}
	var n requisition.Notification
	if err := json.Unmarshal(t.Payload(), &n); err != nil || n.Recipient == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskNotificationDeliver)
	if err := j.Inbox.Deliver(ctx, n); err != nil {
		j.logger().Warn("deliver notification",
			slog.String("recipient", n.Recipient),
			slog.String("requisition", n.RelatedID),
			slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().ObserveDelivery(string(n.Severity))
	return tracker.End(nil)
}

func (j *DeliverJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNotificationDeliver))
	}
	return slog.Default().With(slog.String("job", TaskNotificationDeliver))
}

func (j *DeliverJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
