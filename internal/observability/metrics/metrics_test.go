package metrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointmentMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAppointmentMetrics(reg)
	m.ObserveCreated("test_drive")
	m.ObserveCreated("test_drive")
	m.ObserveTransition("confirm", nil)
	m.ObserveTransition("cancel", errors.New("boom"))
	m.ObserveSlotConflict()
	m.ObserveAvailabilityDegraded()
	m.ObserveLatency("create", 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.createdTotal.WithLabelValues("test_drive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transitionsTotal.WithLabelValues("cancel", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.availabilityDegrade))
}

func TestNotificationMetricsLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotificationMetrics(reg)
	m.ObserveSend("client_confirmation", nil)
	m.ObserveSend("owner_alert", errors.New("provider down"))
	m.ObserveEnqueue("client_receipt", nil)

	families, err := reg.Gather()
	require.NoError(t, err)

	var sent *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "dealership_notifications_total" {
			sent = f
		}
	}
	require.NotNil(t, sent, "expected dealership_notifications_total to be registered")
	assert.Len(t, sent.GetMetric(), 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.sentTotal.WithLabelValues("owner_alert", "error")))
}

func TestMetricsNilSafe(t *testing.T) {
	var a *AppointmentMetrics
	a.ObserveCreated("other")
	a.ObserveTransition("confirm", nil)
	a.ObserveSlotConflict()
	a.ObserveAvailabilityDegraded()
	a.ObserveLatency("list", 0.1)

	var n *NotificationMetrics
	n.ObserveSend("owner_alert", nil)
	n.ObserveEnqueue("owner_alert", nil)
}
