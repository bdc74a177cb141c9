package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/dealership-platform/internal/appointments"
	httpmiddleware "github.com/wolfman30/dealership-platform/internal/http/middleware"
	"github.com/wolfman30/dealership-platform/internal/observability/metrics"
	"github.com/wolfman30/dealership-platform/internal/vehicles"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

const testSecret = "router-secret"

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) http.Handler {
	t.Helper()
	logger := logging.Default()
	paris, err := time.LoadLocation("Europe/Paris")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	apptMetrics := metrics.NewAppointmentMetrics(reg)
	repo := appointments.NewMemoryRepository()
	vehicleSvc := vehicles.NewService(vehicles.NewMemoryRepository(), logger)
	svc := appointments.NewService(repo, appointments.NewValidator(paris, "FR", nil), logger,
		appointments.WithVehicleLookup(vehicleSvc),
		appointments.WithMetrics(apptMetrics),
	)
	calc := appointments.NewAvailabilityCalculator(repo, appointments.DefaultSlots, paris, apptMetrics, logger)

	return New(&Config{
		Logger:             logger,
		Appointments:       appointments.NewHandler(svc, calc, logger),
		Vehicles:           vehicles.NewHandler(vehicleSvc, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"https://prestige-auto.fr"},
		AdminAuthSecret:    testSecret,
		BookingLimiter:     limiter,
	})
}

func adminToken(t *testing.T) string {
	t.Helper()
	token, err := httpmiddleware.SignAdminToken(testSecret, "owner", time.Minute)
	require.NoError(t, err)
	return "Bearer " + token
}

func call(h http.Handler, method, path, body, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

const bookingBody = `{"clientName":"Claire Martin","clientEmail":"claire@example.com","clientPhone":"06 12 34 56 78","appointmentDate":"2099-06-10T14:00","serviceType":"test_drive"}`

func TestRouterHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := call(router, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])

	assert.Equal(t, http.StatusOK, call(router, http.MethodGet, "/ready", "", "").Code)
}

func TestRouterPublicBookingFlow(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := call(router, http.MethodPost, "/api/appointments", bookingBody, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = call(router, http.MethodGet, "/api/appointments/availability?date=2099-06-10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "14:00")

	rec = call(router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `dealership_appointments_created_total{service_type="test_drive"} 1`)
}

func TestRouterAdminRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, nil)

	assert.Equal(t, http.StatusUnauthorized, call(router, http.MethodGet, "/api/appointments", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(router, http.MethodPost, "/api/vehicles", `{}`, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(router, http.MethodDelete, "/api/appointments/abc", "", "").Code)

	rec := call(router, http.MethodGet, "/api/appointments", "", adminToken(t))
	require.Equal(t, http.StatusOK, rec.Code)
	var list appointments.ListResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Zero(t, list.Total)

	assert.Equal(t, http.StatusOK, call(router, http.MethodGet, "/api/vehicles", "", "").Code)
}

func TestRouterVehicleInEmailContext(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := call(router, http.MethodPost, "/api/vehicles", `{"make":"Bentley","model":"Continental GT","year":2022,"price":210000}`, adminToken(t))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var v vehicles.Vehicle
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))

	body := strings.Replace(bookingBody, `"serviceType"`, `"vehicleId":"`+v.ID+`","serviceType"`, 1)
	rec = call(router, http.MethodPost, "/api/appointments", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), v.ID)
}

func TestRouterRateLimitsBookingForm(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	router := newTestRouter(t, httpmiddleware.NewRateLimiter(ctx, 0.01, 1))

	require.Equal(t, http.StatusCreated, call(router, http.MethodPost, "/api/appointments", bookingBody, "").Code)
	assert.Equal(t, http.StatusTooManyRequests, call(router, http.MethodPost, "/api/appointments", bookingBody, "").Code)
	assert.Equal(t, http.StatusOK, call(router, http.MethodGet, "/api/appointments/availability?date=2099-06-10", "", "").Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/appointments", nil)
	req.Header.Set("Origin", "https://prestige-auto.fr")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://prestige-auto.fr", rec.Header().Get("Access-Control-Allow-Origin"))
}
