package metrics

import "github.com/prometheus/client_golang/prometheus"

// AppointmentMetrics exposes counters/histograms for the booking flow.
type AppointmentMetrics struct {
	createdTotal        *prometheus.CounterVec
	transitionsTotal    *prometheus.CounterVec
	slotConflictsTotal  prometheus.Counter
	availabilityDegrade prometheus.Counter
	operationLatency    *prometheus.HistogramVec
}

func NewAppointmentMetrics(reg prometheus.Registerer) *AppointmentMetrics {
	m := &AppointmentMetrics{
		createdTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealership",
			Subsystem: "appointments",
			Name:      "created_total",
			Help:      "Total appointments booked through the public form",
		}, []string{"service_type"}),
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealership",
			Subsystem: "appointments",
			Name:      "transitions_total",
			Help:      "Total admin status transitions",
		}, []string{"action", "status"}),
		slotConflictsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dealership",
			Subsystem: "appointments",
			Name:      "slot_conflicts_total",
			Help:      "Bookings rejected because the slot was already held",
		}),
		availabilityDegrade: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dealership",
			Subsystem: "appointments",
			Name:      "availability_degraded_total",
			Help:      "Availability lookups answered with the full template because the store failed",
		}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dealership",
			Subsystem: "appointments",
			Name:      "operation_latency_seconds",
			Help:      "Latency of appointment store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.createdTotal, m.transitionsTotal, m.slotConflictsTotal, m.availabilityDegrade, m.operationLatency)
	return m
}

func (m *AppointmentMetrics) ObserveCreated(serviceType string) {
	if m == nil {
		return
	}
	m.createdTotal.WithLabelValues(serviceType).Inc()
}

func (m *AppointmentMetrics) ObserveTransition(action string, err error) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(action, statusLabel(err)).Inc()
}

func (m *AppointmentMetrics) ObserveSlotConflict() {
	if m == nil {
		return
	}
	m.slotConflictsTotal.Inc()
}

func (m *AppointmentMetrics) ObserveAvailabilityDegraded() {
	if m == nil {
		return
	}
	m.availabilityDegrade.Inc()
}

func (m *AppointmentMetrics) ObserveLatency(operation string, seconds float64) {
	if m == nil {
		return
	}
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

// NotificationMetrics counts rendered and delivered emails.
type NotificationMetrics struct {
	sentTotal   *prometheus.CounterVec
	queuedTotal *prometheus.CounterVec
}

func NewNotificationMetrics(reg prometheus.Registerer) *NotificationMetrics {
	m := &NotificationMetrics{
		sentTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealership",
			Name:      "notifications_total",
			Help:      "Appointment emails attempted, by template and outcome",
		}, []string{"template", "status"}),
		queuedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dealership",
			Subsystem: "notifications",
			Name:      "queued_total",
			Help:      "Notification jobs handed to the delivery queue",
		}, []string{"template", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.sentTotal, m.queuedTotal)
	return m
}

func (m *NotificationMetrics) ObserveSend(template string, err error) {
	if m == nil {
		return
	}
	m.sentTotal.WithLabelValues(template, statusLabel(err)).Inc()
}

func (m *NotificationMetrics) ObserveEnqueue(template string, err error) {
	if m == nil {
		return
	}
	m.queuedTotal.WithLabelValues(template, statusLabel(err)).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
