package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("requisition:remind").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("requisition:remind").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("requisition:remind", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("requisition:remind", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("requisition:remind")))
}

func TestRemindersAndDeliveries(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddReminders(3)
	m.AddReminders(0)
	m.ObserveDelivery("")
	m.ObserveDelivery("success")

	require.Equal(t, 3.0, testutil.ToFloat64(m.reminders))
	require.Equal(t, 1.0, testutil.ToFloat64(m.deliveries.WithLabelValues("info")))

	var nilMetrics *Metrics
	nilMetrics.AddReminders(1)
	nilMetrics.ObserveDelivery("info")
	require.NoError(t, nilMetrics.Track("x").End(nil))
}
