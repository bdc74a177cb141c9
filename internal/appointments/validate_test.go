package appointments

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parisLocation(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)
	return loc
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func validRequest() CreateRequest {
	return CreateRequest{
		ClientName:      "Claire Martin",
		ClientEmail:     "Claire.Martin@Example.com",
		ClientPhone:     "06 12 34 56 78",
		AppointmentDate: "2025-06-10T14:00",
		ServiceType:     "test_drive",
		Message:         "  Interested in the 911  ",
	}
}

func TestValidateCreateNormalizes(t *testing.T) {
	loc := parisLocation(t)
	v := NewValidator(loc, "fr", fixedClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)))

	appt, err := v.validateCreate(validRequest())
	require.NoError(t, err)
	assert.Equal(t, "Claire Martin", appt.ClientName)
	assert.Equal(t, "claire.martin@example.com", appt.ClientEmail)
	assert.Equal(t, "+33612345678", appt.ClientPhone)
	assert.Equal(t, "2025-06-10T14:00", appt.Slot)
	assert.Equal(t, "2025-06-10", appt.Day())
	assert.Equal(t, "14:00", appt.TimeOfDay())
	assert.Equal(t, ServiceTestDrive, appt.ServiceType)
	assert.Equal(t, "Interested in the 911", appt.Message)
	assert.Equal(t, loc, appt.AppointmentDate.Location())
}

func TestValidateCreateRFC3339UsesBookingTimezone(t *testing.T) {
	v := NewValidator(parisLocation(t), "FR", fixedClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)))
	req := validRequest()
	req.AppointmentDate = "2025-06-10T12:00:00Z"

	appt, err := v.validateCreate(req)
	require.NoError(t, err)
	assert.Equal(t, "2025-06-10T14:00", appt.Slot)
}

func TestValidateCreateRejectsEarlierToday(t *testing.T) {
	// 10:00 in Paris.
	v := NewValidator(parisLocation(t), "FR", fixedClock(time.Date(2025, 6, 1, 8, 0, 30, 0, time.UTC)))

	for raw, ok := range map[string]bool{
		"2025-06-01T09:30":     false,
		"2025-06-01T07:59:00Z": false,
		"2025-06-01T10:00":     true,
		"2025-06-01T17:00":     true,
	} {
		req := validRequest()
		req.AppointmentDate = raw
		_, err := v.validateCreate(req)
		if ok {
			assert.NoError(t, err, raw)
			continue
		}
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, raw)
		assert.Equal(t, "appointmentDate", verr.Field)
	}
}

func TestValidateCreateRejects(t *testing.T) {
	v := NewValidator(parisLocation(t), "FR", fixedClock(time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)))

	cases := map[string]struct {
		mutate func(*CreateRequest)
		field  string
	}{
		"missing name":    {func(r *CreateRequest) { r.ClientName = "  " }, "clientName"},
		"short name":      {func(r *CreateRequest) { r.ClientName = "A" }, "clientName"},
		"bad email":       {func(r *CreateRequest) { r.ClientEmail = "claire@localhost" }, "clientEmail"},
		"display email":   {func(r *CreateRequest) { r.ClientEmail = "Claire <claire@example.com>" }, "clientEmail"},
		"short phone":     {func(r *CreateRequest) { r.ClientPhone = "123" }, "clientPhone"},
		"missing phone":   {func(r *CreateRequest) { r.ClientPhone = "" }, "clientPhone"},
		"past date":       {func(r *CreateRequest) { r.AppointmentDate = "2025-05-31T10:00" }, "appointmentDate"},
		"garbage date":    {func(r *CreateRequest) { r.AppointmentDate = "next tuesday" }, "appointmentDate"},
		"unknown service": {func(r *CreateRequest) { r.ServiceType = "valet" }, "serviceType"},
		"missing service": {func(r *CreateRequest) { r.ServiceType = "" }, "serviceType"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			tc.mutate(&req)
			_, err := v.validateCreate(req)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tc.field, verr.Field)
		})
	}
}

func TestValidateCreateAcceptsToday(t *testing.T) {
	v := NewValidator(parisLocation(t), "FR", fixedClock(time.Date(2025, 6, 10, 16, 0, 0, 0, time.UTC)))
	req := validRequest()
	req.AppointmentDate = "2025-06-10T09:00"
	_, err := v.validateCreate(req)
	assert.NoError(t, err)
}

func TestParseDay(t *testing.T) {
	v := NewValidator(parisLocation(t), "FR", nil)
	day, err := v.parseDay("2025-06-10")
	require.NoError(t, err)
	assert.Equal(t, 10, day.Day())

	_, err = v.parseDay("10/06/2025")
	assert.True(t, IsValidation(err))
}

func TestNewSlotTemplate(t *testing.T) {
	tmpl, err := NewSlotTemplate(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSlots, tmpl)

	tmpl, err = NewSlotTemplate([]string{"9:00", "10:30", "09:00"})
	require.NoError(t, err)
	assert.Equal(t, SlotTemplate{"09:00", "10:30"}, tmpl)

	_, err = NewSlotTemplate([]string{"25:00"})
	assert.Error(t, err)
}

func TestApplyStatusTimestamps(t *testing.T) {
	now := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	appt := &Appointment{Status: StatusPending}

	appt.applyStatus(StatusConfirmed, now)
	assert.NotNil(t, appt.ConfirmedAt)
	assert.Nil(t, appt.CancelledAt)
	assert.Nil(t, appt.CompletedAt)

	appt.applyStatus(StatusCompleted, now)
	assert.Nil(t, appt.ConfirmedAt)
	assert.NotNil(t, appt.CompletedAt)

	appt.applyStatus(StatusRescheduled, now)
	assert.Nil(t, appt.ConfirmedAt)
	assert.Nil(t, appt.CancelledAt)
	assert.Nil(t, appt.CompletedAt)
}

func TestParseStatus(t *testing.T) {
	s, ok := ParseStatus("all")
	assert.True(t, ok)
	assert.Equal(t, Status(""), s)

	s, ok = ParseStatus("confirmed")
	assert.True(t, ok)
	assert.Equal(t, StatusConfirmed, s)

	_, ok = ParseStatus("archived")
	assert.False(t, ok)
}
