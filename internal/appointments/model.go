package appointments

import (
	"strings"
	"time"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusPending     Status = "PENDING"
	StatusConfirmed   Status = "CONFIRMED"
	StatusCancelled   Status = "CANCELLED"
	StatusCompleted   Status = "COMPLETED"
	StatusRescheduled Status = "RESCHEDULED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRescheduled:
		return true
	}
	return false
}

// Live reports whether an appointment in this status occupies its slot.
func (s Status) Live() bool {
	return s != StatusCancelled
}

// AllStatuses lists every status, used to maintain per-status indexes.
var AllStatuses = []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRescheduled}

// ParseStatus normalizes a query value. Empty and "all" mean no filter.
func ParseStatus(raw string) (Status, bool) {
	raw = strings.ToUpper(strings.TrimSpace(raw))
	if raw == "" || raw == "ALL" {
		return "", true
	}
	s := Status(raw)
	return s, s.Valid()
}

// ServiceType is the kind of visit a client requests.
type ServiceType string

const (
	ServiceTestDrive  ServiceType = "test_drive"
	ServiceInspection ServiceType = "inspection"
	ServiceMeeting    ServiceType = "meeting"
	ServiceOther      ServiceType = "other"
)

var serviceLabels = map[ServiceType]string{
	ServiceTestDrive:  "Test drive",
	ServiceInspection: "Vehicle inspection",
	ServiceMeeting:    "Meeting with an advisor",
	ServiceOther:      "Other request",
}

// Valid reports whether t is part of the service enumeration.
func (t ServiceType) Valid() bool {
	_, ok := serviceLabels[t]
	return ok
}

// Label is the human readable name used in emails.
func (t ServiceType) Label() string {
	if label, ok := serviceLabels[t]; ok {
		return label
	}
	return string(t)
}

// Action is an administrator transition request.
type Action string

const (
	ActionConfirm    Action = "confirm"
	ActionCancel     Action = "cancel"
	ActionComplete   Action = "complete"
	ActionRestore    Action = "restore"
	ActionReschedule Action = "reschedule"
)

// Target returns the status an action moves an appointment to.
func (a Action) Target() (Status, bool) {
	switch a {
	case ActionConfirm:
		return StatusConfirmed, true
	case ActionCancel:
		return StatusCancelled, true
	case ActionComplete:
		return StatusCompleted, true
	case ActionRestore:
		return StatusPending, true
	case ActionReschedule:
		return StatusRescheduled, true
	}
	return "", false
}

// Appointment is a client booking request and its admin-managed lifecycle.
type Appointment struct {
	ID              string      `json:"id"`
	ClientName      string      `json:"clientName"`
	ClientEmail     string      `json:"clientEmail"`
	ClientPhone     string      `json:"clientPhone"`
	AppointmentDate time.Time   `json:"appointmentDate"`
	Slot            string      `json:"slot"` // local "2006-01-02T15:04" in the booking timezone
	ServiceType     ServiceType `json:"serviceType"`
	Message         string      `json:"message,omitempty"`
	Status          Status      `json:"status"`
	VehicleID       string      `json:"vehicleId,omitempty"`
	AdminMessage    string      `json:"adminMessage,omitempty"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
	ConfirmedAt     *time.Time  `json:"confirmedAt,omitempty"`
	CancelledAt     *time.Time  `json:"cancelledAt,omitempty"`
	CompletedAt     *time.Time  `json:"completedAt,omitempty"`
}

// Day returns the "YYYY-MM-DD" part of the slot.
func (a *Appointment) Day() string {
	if len(a.Slot) < len(dayLayout) {
		return ""
	}
	return a.Slot[:len(dayLayout)]
}

// TimeOfDay returns the "HH:MM" part of the slot.
func (a *Appointment) TimeOfDay() string {
	if len(a.Slot) != len(slotLayout) {
		return ""
	}
	return a.Slot[len(dayLayout)+1:]
}

// applyStatus moves the appointment to target and keeps the terminal timestamps
// consistent: exactly the matching timestamp for CONFIRMED/CANCELLED/COMPLETED,
// none for PENDING and RESCHEDULED.
func (a *Appointment) applyStatus(target Status, now time.Time) {
	a.ConfirmedAt, a.CancelledAt, a.CompletedAt = nil, nil, nil
	stamp := now
	switch target {
	case StatusConfirmed:
		a.ConfirmedAt = &stamp
	case StatusCancelled:
		a.CancelledAt = &stamp
	case StatusCompleted:
		a.CompletedAt = &stamp
	}
	a.Status = target
	a.UpdatedAt = now
}

func (a *Appointment) clone() *Appointment {
	if a == nil {
		return nil
	}
	cp := *a
	cp.ConfirmedAt = cloneTime(a.ConfirmedAt)
	cp.CancelledAt = cloneTime(a.CancelledAt)
	cp.CompletedAt = cloneTime(a.CompletedAt)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// CreateRequest is the client booking form payload.
type CreateRequest struct {
	ClientName      string `json:"clientName"`
	ClientEmail     string `json:"clientEmail"`
	ClientPhone     string `json:"clientPhone"`
	AppointmentDate string `json:"appointmentDate"`
	ServiceType     string `json:"serviceType"`
	Message         string `json:"message"`
	VehicleID       string `json:"vehicleId"`
}

// TransitionRequest is the admin PATCH payload.
type TransitionRequest struct {
	Action          Action `json:"action"`
	AdminMessage    string `json:"adminMessage"`
	NotifyClient    *bool  `json:"notifyClient,omitempty"`
	AppointmentDate string `json:"appointmentDate,omitempty"` // reschedule only
}

func (r TransitionRequest) shouldNotify() bool {
	return r.NotifyClient == nil || *r.NotifyClient
}

// ListFilter selects a page of appointments, newest first.
type ListFilter struct {
	Status   Status
	Page     int
	PageSize int
}

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

func (f ListFilter) normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}
	return f
}

func (f ListFilter) offset() int {
	return (f.Page - 1) * f.PageSize
}
