package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/wolfman30/dealership-platform/internal/config"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

func testConfig() *appconfig.Config {
	return &appconfig.Config{
		Env:                       "test",
		BusinessName:              "Prestige Automobiles",
		StoreBackend:              "memory",
		BookingTimezone:           "Europe/Paris",
		BookingSlots:              []string{"09:00", "14:00"},
		DefaultRegion:             "FR",
		EmailProvider:             "stub",
		OwnerEmail:                "owner@prestige-auto.fr",
		NotifyMode:                "inline",
		NotifyWorkerPoll:          time.Second,
		BookingRateLimitPerSecond: 1,
		BookingRateLimitBurst:     5,
	}
}

func TestBuildAppServesRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := buildApp(ctx, testConfig(), logging.New("error"), prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.worker)

	for _, path := range []string{"/health", "/ready", "/metrics", "/api/vehicles"} {
		rec := httptest.NewRecorder()
		app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/appointments/availability?date=2099-01-05", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"availableTimeSlots":["09:00","14:00"]}`, rec.Body.String())
}

func TestBuildAppQueueModeStartsInlineWorker(t *testing.T) {
	cfg := testConfig()
	cfg.NotifyMode = "queue"
	ctx, cancel := context.WithCancel(context.Background())

	app, err := buildApp(ctx, cfg, logging.New("error"), prometheus.NewRegistry())
	require.NoError(t, err)
	defer app.Close()
	require.NotNil(t, app.worker)

	app.worker.Start(ctx)
	body := `{"clientName":"Claire Martin","clientEmail":"claire@example.com","clientPhone":"0612345678","appointmentDate":"2099-01-05T09:00","serviceType":"meeting"}`
	req := httptest.NewRequest(http.MethodPost, "/api/appointments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	app.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	cancel()
	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	waitForWorker(waitCtx, app.worker, logging.New("error"))
}

func TestBuildAppRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BookingTimezone = "Mars/Olympus"
	_, err := buildApp(context.Background(), cfg, logging.New("error"), prometheus.NewRegistry())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.BookingSlots = []string{"25:99"}
	_, err = buildApp(context.Background(), cfg, logging.New("error"), prometheus.NewRegistry())
	assert.Error(t, err)

	cfg = testConfig()
	cfg.StoreBackend = "mongo"
	_, err = buildApp(context.Background(), cfg, logging.New("error"), prometheus.NewRegistry())
	assert.Error(t, err)
}
