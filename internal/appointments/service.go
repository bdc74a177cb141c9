package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dealership-platform/internal/notify"
	"github.com/wolfman30/dealership-platform/internal/observability/metrics"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

var appointmentsTracer = otel.Tracer("dealership.internal.appointments")

const emailDateLayout = "Monday 2 January 2006 at 15:04"

// VehicleLookup resolves the optional vehicle reference for email context.
type VehicleLookup interface {
	Summary(ctx context.Context, id string) (*notify.VehicleSummary, error)
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithNotifier sets where appointment emails go. Without one no email is sent.
func WithNotifier(n notify.Notifier) ServiceOption {
	return func(s *Service) { s.notifier = n }
}

// WithVehicleLookup enables vehicle details in emails.
func WithVehicleLookup(v VehicleLookup) ServiceOption {
	return func(s *Service) { s.vehicles = v }
}

// WithMetrics records booking counters.
func WithMetrics(m *metrics.AppointmentMetrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service implements the appointment lifecycle: booking, admin transitions,
// deletion and listing.
type Service struct {
	repo      Repository
	validator *Validator
	notifier  notify.Notifier
	vehicles  VehicleLookup
	metrics   *metrics.AppointmentMetrics
	logger    *logging.Logger
	now       func() time.Time
}

// NewService constructs an appointment service.
func NewService(repo Repository, validator *Validator, logger *logging.Logger, opts ...ServiceOption) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if validator == nil {
		panic("appointments: validator required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	s := &Service{repo: repo, validator: validator, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates and stores a new PENDING appointment, then alerts the owner
// and sends the client a receipt.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.create")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveLatency("create", time.Since(start).Seconds()) }()

	appt, err := s.validator.validateCreate(req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	now := s.now().UTC()
	appt.ID = uuid.NewString()
	appt.Status = StatusPending
	appt.CreatedAt = now
	appt.UpdatedAt = now
	span.SetAttributes(
		attribute.String("dealership.appointment_id", appt.ID),
		attribute.String("dealership.slot", appt.Slot),
		attribute.String("dealership.service_type", string(appt.ServiceType)),
	)

	if err := s.repo.Create(ctx, appt); err != nil {
		span.RecordError(err)
		if errors.Is(err, ErrSlotUnavailable) {
			s.metrics.ObserveSlotConflict()
			s.logger.Info("booking rejected: slot taken", "slot", appt.Slot)
			return nil, err
		}
		return nil, fmt.Errorf("appointments: create: %w", err)
	}
	s.metrics.ObserveCreated(string(appt.ServiceType))
	s.logger.Info("appointment booked", "appointment_id", appt.ID, "slot", appt.Slot, "service_type", string(appt.ServiceType))

	data := s.emailData(ctx, appt)
	s.dispatch(ctx, notify.TemplateOwnerAlert, data)
	s.dispatch(ctx, notify.TemplateClientReceipt, data)
	return appt, nil
}

// Get loads one appointment.
func (s *Service) Get(ctx context.Context, id string) (*Appointment, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, invalid("id", "appointment id is required")
	}
	return s.repo.Get(ctx, id)
}

// Transition applies an admin action. confirm and cancel email the client
// unless NotifyClient is false; reschedule moves the appointment to
// AppointmentDate.
func (s *Service) Transition(ctx context.Context, id string, req TransitionRequest) (*Appointment, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.transition")
	defer span.End()

	action := Action(strings.ToLower(strings.TrimSpace(string(req.Action))))
	span.SetAttributes(
		attribute.String("dealership.appointment_id", id),
		attribute.String("dealership.action", string(action)),
	)

	appt, err := s.transition(ctx, id, action, req)
	s.metrics.ObserveTransition(string(action), err)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return appt, nil
}

func (s *Service) transition(ctx context.Context, id string, action Action, req TransitionRequest) (*Appointment, error) {
	target, ok := action.Target()
	if !ok {
		return nil, invalid("action", fmt.Sprintf("unknown action %q", req.Action))
	}
	var newDate time.Time
	if action == ActionReschedule {
		date, err := s.validator.parseDate(req.AppointmentDate)
		if err != nil {
			return nil, err
		}
		newDate = date
	}

	appt, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	previous := appt.Status
	if action == ActionReschedule {
		appt.AppointmentDate = newDate
		appt.Slot = s.validator.slotOf(newDate)
	}
	appt.applyStatus(target, s.now().UTC())
	appt.AdminMessage = strings.TrimSpace(req.AdminMessage)

	if err := s.repo.Update(ctx, appt); err != nil {
		if errors.Is(err, ErrSlotUnavailable) {
			s.metrics.ObserveSlotConflict()
			return nil, err
		}
		if IsNotFound(err) {
			return nil, err
		}
		return nil, fmt.Errorf("appointments: update: %w", err)
	}
	s.logger.Info("appointment transitioned",
		"appointment_id", appt.ID,
		"action", string(action),
		"from", string(previous),
		"to", string(appt.Status),
	)

	if !req.shouldNotify() {
		return appt, nil
	}
	switch action {
	case ActionConfirm:
		s.dispatch(ctx, notify.TemplateClientConfirmation, s.emailData(ctx, appt))
	case ActionCancel:
		s.dispatch(ctx, notify.TemplateClientCancellation, s.emailData(ctx, appt))
	case ActionReschedule:
		data := s.emailData(ctx, appt)
		data.Rescheduled = true
		s.dispatch(ctx, notify.TemplateClientConfirmation, data)
	}
	return appt, nil
}

// Delete permanently removes an appointment. No email is sent.
func (s *Service) Delete(ctx context.Context, id string) error {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.delete")
	defer span.End()
	span.SetAttributes(attribute.String("dealership.appointment_id", id))

	if strings.TrimSpace(id) == "" {
		return invalid("id", "appointment id is required")
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		span.RecordError(err)
		if IsNotFound(err) {
			return err
		}
		return fmt.Errorf("appointments: delete: %w", err)
	}
	s.logger.Info("appointment deleted", "appointment_id", id)
	return nil
}

// ListResult is one page of appointments.
type ListResult struct {
	Appointments []*Appointment `json:"appointments"`
	Total        int            `json:"total"`
	Page         int            `json:"page"`
	Limit        int            `json:"limit"`
	TotalPages   int            `json:"totalPages"`
}

// List returns a page of appointments, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) (*ListResult, error) {
	ctx, span := appointmentsTracer.Start(ctx, "appointments.list")
	defer span.End()
	start := time.Now()
	defer func() { s.metrics.ObserveLatency("list", time.Since(start).Seconds()) }()

	filter = filter.normalize()
	span.SetAttributes(
		attribute.String("dealership.status_filter", string(filter.Status)),
		attribute.Int("dealership.page", filter.Page),
	)
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: list: %w", err)
	}
	pages := (total + filter.PageSize - 1) / filter.PageSize
	return &ListResult{
		Appointments: items,
		Total:        total,
		Page:         filter.Page,
		Limit:        filter.PageSize,
		TotalPages:   pages,
	}, nil
}

func (s *Service) emailData(ctx context.Context, appt *Appointment) notify.AppointmentEmailData {
	data := notify.AppointmentEmailData{
		ClientName:    appt.ClientName,
		ClientEmail:   appt.ClientEmail,
		ClientPhone:   appt.ClientPhone,
		FormattedDate: appt.AppointmentDate.In(s.validator.Location()).Format(emailDateLayout),
		ServiceLabel:  appt.ServiceType.Label(),
		ClientMessage: appt.Message,
		AdminMessage:  appt.AdminMessage,
		AppointmentID: appt.ID,
	}
	if appt.VehicleID != "" && s.vehicles != nil {
		vehicle, err := s.vehicles.Summary(ctx, appt.VehicleID)
		if err != nil {
			s.logger.Warn("vehicle lookup failed for appointment email", "error", err, "vehicle_id", appt.VehicleID, "appointment_id", appt.ID)
		} else {
			data.Vehicle = vehicle
		}
	}
	return data
}

func (s *Service) dispatch(ctx context.Context, kind notify.TemplateKind, data notify.AppointmentEmailData) {
	if s.notifier == nil {
		return
	}
	if !s.notifier.Dispatch(ctx, kind, data) {
		s.logger.Warn("appointment email not delivered", "template", string(kind), "appointment_id", data.AppointmentID)
	}
}
