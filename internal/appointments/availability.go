package appointments

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dealership-platform/internal/observability/metrics"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

// AvailabilityCalculator answers which template slots are still open on a day.
type AvailabilityCalculator struct {
	repo     Repository
	template SlotTemplate
	loc      *time.Location
	metrics  *metrics.AppointmentMetrics
	logger   *logging.Logger
}

// NewAvailabilityCalculator creates a calculator over repo. An empty template
// falls back to DefaultSlots.
func NewAvailabilityCalculator(repo Repository, template SlotTemplate, loc *time.Location, m *metrics.AppointmentMetrics, logger *logging.Logger) *AvailabilityCalculator {
	if repo == nil {
		panic("appointments: repository required")
	}
	if len(template) == 0 {
		template = DefaultSlots
	}
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AvailabilityCalculator{repo: repo, template: template, loc: loc, metrics: m, logger: logger}
}

// Template returns a copy of the daily slot template.
func (c *AvailabilityCalculator) Template() []string {
	return append([]string(nil), c.template...)
}

// AvailableSlots returns the template slots on day that no live appointment
// holds, in template order. Past days are not excluded. If the store cannot be
// read the full template is returned and the lookup is logged as degraded.
func (c *AvailabilityCalculator) AvailableSlots(ctx context.Context, day time.Time) []string {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.availability")
	defer span.End()

	dayKey := day.In(c.loc).Format(dayLayout)
	span.SetAttributes(attribute.String("dealership.day", dayKey))

	booked, err := c.repo.ListByDay(ctx, dayKey)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("dealership.availability_degraded", true))
		c.metrics.ObserveAvailabilityDegraded()
		c.logger.Warn("availability degraded: returning full slot template", "error", err, "day", dayKey)
		return c.Template()
	}

	taken := make(map[string]struct{}, len(booked))
	for _, appt := range booked {
		if appt.Status.Live() {
			taken[appt.TimeOfDay()] = struct{}{}
		}
	}
	open := make([]string, 0, len(c.template))
	for _, slot := range c.template {
		if _, ok := taken[slot]; !ok {
			open = append(open, slot)
		}
	}
	return open
}
