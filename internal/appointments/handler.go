package appointments

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/dealership-platform/pkg/logging"
)

const maxBodyBytes = 64 << 10

// Handler exposes the appointment endpoints.
type Handler struct {
	service      *Service
	availability *AvailabilityCalculator
	logger       *logging.Logger
}

// NewHandler creates the appointment HTTP handler.
func NewHandler(service *Service, availability *AvailabilityCalculator, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, availability: availability, logger: logger}
}

// PublicRoutes returns the unauthenticated booking endpoints.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/availability", h.Availability)
}

// AdminRoutes returns the staff endpoints.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
	r.Patch("/{id}", h.Transition)
	r.Delete("/{id}", h.Delete)
}

// Availability returns the open slots for a day.
// GET /api/appointments/availability?date=YYYY-MM-DD
func (h *Handler) Availability(w http.ResponseWriter, r *http.Request) {
	day, err := h.service.validator.parseDay(r.URL.Query().Get("date"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	slots := h.availability.AvailableSlots(r.Context(), day)
	writeJSON(w, http.StatusOK, map[string]any{"availableTimeSlots": slots})
}

// Create books an appointment from the public form.
// POST /api/appointments
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	appt, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

// List returns a page of appointments.
// GET /api/appointments?status=&page=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status, ok := ParseStatus(q.Get("status"))
	if !ok {
		h.writeError(w, invalid("status", "unknown status filter"))
		return
	}
	page, err := optionalInt(q.Get("page"), "page")
	if err != nil {
		h.writeError(w, err)
		return
	}
	limit, err := optionalInt(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, err)
		return
	}
	result, err := h.service.List(r.Context(), ListFilter{Status: status, Page: page, PageSize: limit})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get returns one appointment.
// GET /api/appointments/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	appt, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Transition applies an admin action.
// PATCH /api/appointments/{id}
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	var req TransitionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	appt, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// Delete removes an appointment permanently.
// DELETE /api/appointments/{id}
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return invalid("", "invalid JSON body")
	}
	return nil
}

func optionalInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, invalid(field, field+" must be a positive integer")
	}
	return n, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var nf *NotFoundError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field})
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "appointment not found"})
	case errors.Is(err, ErrSlotUnavailable):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "this time slot is no longer available", Field: "appointmentDate"})
	default:
		h.logger.Error("appointment request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
