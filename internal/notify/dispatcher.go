package notify

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/dealership-platform/internal/observability/metrics"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

var notifyTracer = otel.Tracer("dealership.internal.notify")

// Notifier delivers one appointment email. The result reports whether the
// email was handed off; failures are never returned to the caller.
type Notifier interface {
	Dispatch(ctx context.Context, kind TemplateKind, data AppointmentEmailData) bool
}

// NotificationError describes a failed render or send.
type NotificationError struct {
	Template TemplateKind
	To       string
	Err      error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify: %s to %q: %v", e.Template, e.To, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// IsNotificationError reports whether err is (or wraps) a NotificationError.
func IsNotificationError(err error) bool {
	var ne *NotificationError
	return errors.As(err, &ne)
}

// Dispatcher renders and sends emails synchronously. Each call sends at most
// one email and never retries.
type Dispatcher struct {
	renderer *Renderer
	sender   EmailSender
	metrics  *metrics.NotificationMetrics
	logger   *logging.Logger
}

// NewDispatcher wires a renderer to an email sender. metrics may be nil.
func NewDispatcher(renderer *Renderer, sender EmailSender, m *metrics.NotificationMetrics, logger *logging.Logger) *Dispatcher {
	if renderer == nil {
		panic("notify: renderer required")
	}
	if sender == nil {
		panic("notify: email sender required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{renderer: renderer, sender: sender, metrics: m, logger: logger}
}

// Dispatch implements Notifier.
func (d *Dispatcher) Dispatch(ctx context.Context, kind TemplateKind, data AppointmentEmailData) bool {
	if err := d.Send(ctx, kind, data); err != nil {
		d.logger.Error("appointment email failed",
			"error", err,
			"template", string(kind),
			"appointment_id", data.AppointmentID,
		)
		return false
	}
	return true
}

// Send is Dispatch with the NotificationError exposed, for callers that
// need to distinguish failures such as the queue worker.
func (d *Dispatcher) Send(ctx context.Context, kind TemplateKind, data AppointmentEmailData) error {
	ctx, span := notifyTracer.Start(ctx, "notify.dispatch")
	defer span.End()
	span.SetAttributes(
		attribute.String("dealership.template", string(kind)),
		attribute.String("dealership.appointment_id", data.AppointmentID),
	)

	msg, err := d.renderer.Render(kind, data)
	if err == nil {
		err = d.sender.Send(ctx, msg)
	}
	d.metrics.ObserveSend(string(kind), err)
	if err != nil {
		span.RecordError(err)
		return &NotificationError{Template: kind, To: msg.To, Err: err}
	}
	d.logger.Info("appointment email sent", "template", string(kind), "appointment_id", data.AppointmentID)
	return nil
}

var _ Notifier = (*Dispatcher)(nil)
