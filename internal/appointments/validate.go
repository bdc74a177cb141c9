package appointments

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nyaruka/phonenumbers"
)

const (
	dayLayout  = "2006-01-02"
	slotLayout = "2006-01-02T15:04"
	timeLayout = "15:04"

	maxNameLength    = 100
	maxMessageLength = 2000
)

var (
	emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

	dateLayouts = []string{
		"2006-01-02T15:04:05",
		slotLayout,
		"2006-01-02 15:04",
	}
)

// Validator turns raw booking input into a normalized appointment draft.
type Validator struct {
	loc    *time.Location
	region string
	now    func() time.Time
}

// NewValidator builds a validator for the booking timezone. region is the
// ISO 3166 code applied to phone numbers written without a country prefix.
func NewValidator(loc *time.Location, region string, now func() time.Time) *Validator {
	if loc == nil {
		loc = time.UTC
	}
	if region == "" {
		region = "FR"
	}
	if now == nil {
		now = time.Now
	}
	return &Validator{loc: loc, region: strings.ToUpper(region), now: now}
}

// Location returns the booking timezone.
func (v *Validator) Location() *time.Location {
	return v.loc
}

// validateCreate checks every required field and returns a draft with
// normalized contact fields. The draft has no id, status or timestamps.
func (v *Validator) validateCreate(req CreateRequest) (*Appointment, error) {
	name := strings.TrimSpace(req.ClientName)
	if name == "" {
		return nil, invalid("clientName", "name is required")
	}
	if n := utf8.RuneCountInString(name); n < 2 || n > maxNameLength {
		return nil, invalid("clientName", fmt.Sprintf("name must be between 2 and %d characters", maxNameLength))
	}

	email, err := normalizeEmail(req.ClientEmail)
	if err != nil {
		return nil, err
	}

	phone, err := v.normalizePhone(req.ClientPhone)
	if err != nil {
		return nil, err
	}

	date, err := v.parseDate(req.AppointmentDate)
	if err != nil {
		return nil, err
	}

	serviceType := ServiceType(strings.ToLower(strings.TrimSpace(req.ServiceType)))
	if serviceType == "" {
		return nil, invalid("serviceType", "service type is required")
	}
	if !serviceType.Valid() {
		return nil, invalid("serviceType", fmt.Sprintf("unknown service type %q", req.ServiceType))
	}

	message := strings.TrimSpace(req.Message)
	if utf8.RuneCountInString(message) > maxMessageLength {
		return nil, invalid("message", fmt.Sprintf("message must be at most %d characters", maxMessageLength))
	}

	return &Appointment{
		ClientName:      name,
		ClientEmail:     email,
		ClientPhone:     phone,
		AppointmentDate: date,
		Slot:            v.slotOf(date),
		ServiceType:     serviceType,
		Message:         message,
		VehicleID:       strings.TrimSpace(req.VehicleID),
	}, nil
}

func normalizeEmail(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid("clientEmail", "email is required")
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || !emailPattern.MatchString(raw) {
		return "", invalid("clientEmail", "email address is not valid")
	}
	return strings.ToLower(raw), nil
}

// normalizePhone validates against the international numbering plan and
// returns the E.164 form.
func (v *Validator) normalizePhone(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", invalid("clientPhone", "phone number is required")
	}
	num, err := phonenumbers.Parse(raw, v.region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", invalid("clientPhone", "phone number is not valid")
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}

// parseDate accepts RFC 3339 timestamps or local "YYYY-MM-DDTHH:MM" values and
// rejects times before the current minute.
func (v *Validator) parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, invalid("appointmentDate", "appointment date is required")
	}
	date, ok := v.parseTime(raw)
	if !ok {
		return time.Time{}, invalid("appointmentDate", "appointment date must be RFC 3339 or YYYY-MM-DDTHH:MM")
	}
	date = date.In(v.loc).Truncate(time.Minute)
	if date.Before(v.now().Truncate(time.Minute)) {
		return time.Time{}, invalid("appointmentDate", "appointment date must not be in the past")
	}
	return date, nil
}

func (v *Validator) parseTime(raw string) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, raw, v.loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseDay parses an availability query date.
func (v *Validator) parseDay(raw string) (time.Time, error) {
	day, err := time.ParseInLocation(dayLayout, strings.TrimSpace(raw), v.loc)
	if err != nil {
		return time.Time{}, invalid("date", "date must be formatted YYYY-MM-DD")
	}
	return day, nil
}

func (v *Validator) slotOf(t time.Time) string {
	return t.In(v.loc).Format(slotLayout)
}

// SlotTemplate is the ordered list of "HH:MM" times offered every day.
type SlotTemplate []string

// DefaultSlots is the showroom's standard day: hourly with a lunch gap.
var DefaultSlots = SlotTemplate{"09:00", "10:00", "11:00", "14:00", "15:00", "16:00", "17:00"}

// NewSlotTemplate validates a configured template, keeping its order and
// dropping duplicates.
func NewSlotTemplate(slots []string) (SlotTemplate, error) {
	if len(slots) == 0 {
		return append(SlotTemplate(nil), DefaultSlots...), nil
	}
	seen := make(map[string]struct{}, len(slots))
	out := make(SlotTemplate, 0, len(slots))
	for _, raw := range slots {
		raw = strings.TrimSpace(raw)
		t, err := time.Parse(timeLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("appointments: invalid slot %q: %w", raw, err)
		}
		slot := t.Format(timeLayout)
		if _, dup := seen[slot]; dup {
			continue
		}
		seen[slot] = struct{}{}
		out = append(out, slot)
	}
	return out, nil
}
