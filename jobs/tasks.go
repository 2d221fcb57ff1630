package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/reqflow/internal/requisition"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskNotificationDeliver writes one notification into its recipient's inbox.
	TaskNotificationDeliver = "notification:deliver"
	// TaskRequisitionRemind nudges approvers of requisitions idle at a stage.
	TaskRequisitionRemind = "requisition:remind"
)

// ReminderPayload configures one reminder sweep.
type ReminderPayload struct {
	// After is how long a requisition may sit at a stage before a reminder.
	After time.Duration `json:"after"`
}

// NewNotificationTask constructs a delivery task.
func NewNotificationTask(n requisition.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationDeliver, data, asynq.Queue(QueueDefault), asynq.MaxRetry(5)), nil
}

// NewReminderTask constructs a reminder sweep task.
func NewReminderTask(after time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(ReminderPayload{After: after})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRequisitionRemind, data, asynq.Queue(QueueDefault)), nil
}
