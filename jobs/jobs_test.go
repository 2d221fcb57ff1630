package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/reqflow/internal/jobs"
	"github.com/odyssey-erp/reqflow/internal/requisition"
)

type memoryInbox struct {
	got []requisition.Notification
	err error
}

func (m *memoryInbox) Deliver(ctx context.Context, n requisition.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.got = append(m.got, n)
	return nil
}

type fakeReminder struct {
	after time.Duration
	sent  int
	err   error
}

func (f *fakeReminder) SendReminders(ctx context.Context, after time.Duration) (int, error) {
	f.after = after
	return f.sent, f.err
}

func TestDeliverJobWritesInbox(t *testing.T) {
	inbox := &memoryInbox{}
	job := NewDeliverJob(inbox, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewNotificationTask(requisition.Notification{Recipient: "aud-1", Title: "Approval Required", RelatedID: "REQ-1"})
	require.NoError(t, err)
	require.Equal(t, TaskNotificationDeliver, task.Type())
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, inbox.got, 1)
	require.Equal(t, "REQ-1", inbox.got[0].RelatedID)

	inbox.err = errors.New("redis down")
	require.Error(t, job.Handle(context.Background(), task))

	bad := asynq.NewTask(TaskNotificationDeliver, []byte("{"))
	require.ErrorIs(t, job.Handle(context.Background(), bad), asynq.SkipRetry)
	noRecipient, _ := json.Marshal(requisition.Notification{Title: "x"})
	require.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskNotificationDeliver, noRecipient)), asynq.SkipRetry)
}

func TestRemindJobUsesPayloadThenDefault(t *testing.T) {
	svc := &fakeReminder{sent: 2}
	job := NewRemindJob(svc, 6*time.Hour, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewReminderTask(90 * time.Minute)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 90*time.Minute, svc.after)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskRequisitionRemind, nil)))
	require.Equal(t, 6*time.Hour, svc.after)

	svc.err = errors.New("store down")
	require.Error(t, job.Handle(context.Background(), task))

	var unconfigured *RemindJob
	require.Error(t, unconfigured.Handle(context.Background(), task))
}

func TestHealthWithoutInspector(t *testing.T) {
	h := NewHandler(nil, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
