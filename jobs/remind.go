package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/reqflow/internal/jobs"
)

// Reminder is the part of the requisition service the sweep needs.
type Reminder interface {
	SendReminders(ctx context.Context, after time.Duration) (int, error)
}

// RemindJob handles TaskRequisitionRemind.
type RemindJob struct {
	Service Reminder
	// After applies when the task payload carries no threshold.
	After   time.Duration
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewRemindJob wires dependencies for the reminder handler.
func NewRemindJob(service Reminder, after time.Duration, logger *slog.Logger, metrics *jobmetrics.Metrics) *RemindJob {
	return &RemindJob{Service: service, After: after, Logger: logger, Metrics: metrics}
}

// Handle runs one sweep.
func (j *RemindJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("requisition remind: handler not configured")
	}
	var payload ReminderPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	after := payload.After
	if after <= 0 {
		after = j.After
	}
	if after <= 0 {
		after = 24 * time.Hour
	}

	start := time.Now()
	tracker := j.metrics().Track(TaskRequisitionRemind)
	logger := j.logger().With(slog.Duration("after", after))

	sent, err := j.Service.SendReminders(ctx, after)
	if err != nil {
		logger.Error("reminder sweep failed", slog.Any("error", err))
		return tracker.End(err)
	}
	j.metrics().AddReminders(sent)
	logger.Info("completed reminder sweep",
		slog.Int("reminded", sent),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *RemindJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskRequisitionRemind))
	}
	return slog.Default().With(slog.String("job", TaskRequisitionRemind))
}

func (j *RemindJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
