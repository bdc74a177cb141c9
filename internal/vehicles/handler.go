package vehicles

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/dealership-platform/pkg/logging"
)

const maxBodyBytes = 256 << 10

// Handler exposes the catalog endpoints.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

// NewHandler creates the vehicle HTTP handler.
func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// PublicRoutes registers the read-only catalog endpoints.
func (h *Handler) PublicRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)
}

// AdminRoutes registers the catalog management endpoints.
func (h *Handler) AdminRoutes(r chi.Router) {
	r.Post("/", h.Create)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// List returns a filtered page of the catalog.
// GET /api/vehicles?make=&minPrice=&maxPrice=&minYear=&maxYear=&available=&q=&sort=&page=&limit=
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{
		Make:  q.Get("make"),
		Query: q.Get("q"),
		Sort:  strings.ToLower(strings.TrimSpace(q.Get("sort"))),
	}
	var err error
	ints := []struct {
		name string
		dst  *int
	}{
		{"minYear", &filter.MinYear},
		{"maxYear", &filter.MaxYear},
		{"page", &filter.Page},
		{"limit", &filter.PageSize},
	}
	for _, p := range ints {
		var n int64
		if n, err = optionalInt(q.Get(p.name), p.name); err != nil {
			h.writeError(w, err)
			return
		}
		*p.dst = int(n)
	}
	if filter.MinPrice, err = optionalInt(q.Get("minPrice"), "minPrice"); err != nil {
		h.writeError(w, err)
		return
	}
	if filter.MaxPrice, err = optionalInt(q.Get("maxPrice"), "maxPrice"); err != nil {
		h.writeError(w, err)
		return
	}
	if raw := strings.TrimSpace(q.Get("available")); raw != "" {
		available, perr := strconv.ParseBool(raw)
		if perr != nil {
			h.writeError(w, invalid("available", "available must be true or false"))
			return
		}
		filter.Available = &available
	}

	result, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Get returns one vehicle.
// GET /api/vehicles/{id}
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Create adds a vehicle.
// POST /api/vehicles
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	v, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// Update replaces a vehicle's fields.
// PUT /api/vehicles/{id}
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, err)
		return
	}
	v, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// Delete removes a vehicle.
// DELETE /api/vehicles/{id}
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

func optionalInt(raw, field string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
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
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Message, Field: verr.Field})
	case IsNotFound(err):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "vehicle not found"})
	default:
		h.logger.Error("vehicle request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
