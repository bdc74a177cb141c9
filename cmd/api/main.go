package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/dealership-platform/cmd/mainconfig"
	"github.com/wolfman30/dealership-platform/internal/api/router"
	"github.com/wolfman30/dealership-platform/internal/app/bootstrap"
	"github.com/wolfman30/dealership-platform/internal/appointments"
	appconfig "github.com/wolfman30/dealership-platform/internal/config"
	httpmiddleware "github.com/wolfman30/dealership-platform/internal/http/middleware"
	"github.com/wolfman30/dealership-platform/internal/notify"
	"github.com/wolfman30/dealership-platform/internal/observability/metrics"
	"github.com/wolfman30/dealership-platform/internal/vehicles"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

func main() {
	// .env is optional; real deployments use the environment.
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dealership API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreBackend,
		"notify_mode", cfg.NotifyMode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	app, err := buildApp(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if app.worker != nil {
		app.worker.Start(ctx)
		logger.Info("inline notification worker started")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      app.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if app.worker != nil {
		waitForWorker(shutdownCtx, app.worker, logger)
	}
	logger.Info("server stopped")
}

type application struct {
	handler http.Handler
	worker  *notify.Worker
	stores  *bootstrap.Stores
}

func (a *application) Close() {
	if a.stores != nil {
		a.stores.Close()
	}
}

// buildApp wires stores, notification delivery, services and the router.
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg *prometheus.Registry) (*application, error) {
	loc, err := time.LoadLocation(cfg.BookingTimezone)
	if err != nil {
		return nil, fmt.Errorf("booking timezone %q: %w", cfg.BookingTimezone, err)
	}
	template, err := appointments.NewSlotTemplate(cfg.BookingSlots)
	if err != nil {
		return nil, fmt.Errorf("booking slots: %w", err)
	}

	var awsCfg *aws.Config
	if bootstrap.NeedsAWS(cfg) {
		loaded, err := mainconfig.LoadAWSConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		awsCfg = &loaded
	}

	stores, err := bootstrap.BuildStores(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app := &application{stores: stores}

	apptMetrics := metrics.NewAppointmentMetrics(reg)
	notifyMetrics := metrics.NewNotificationMetrics(reg)

	sender, provider := bootstrap.BuildEmailSender(cfg, awsCfg, logger)
	dispatcher, err := bootstrap.BuildDispatcher(cfg, sender, notifyMetrics, logger)
	if err != nil {
		stores.Close()
		return nil, err
	}
	var queue notify.Queue
	if cfg.NotifyMode == "queue" {
		queue = bootstrap.BuildNotificationQueue(cfg, awsCfg)
		// An SQS queue is drained by cmd/notification-worker.
		if _, inProcess := queue.(*notify.MemoryQueue); inProcess {
			app.worker = notify.NewWorker(queue, dispatcher, logger.Component("notify-worker"), bootstrap.WorkerOptions(cfg)...)
		}
	}
	notifier := bootstrap.BuildNotifier(cfg, dispatcher, queue, notifyMetrics, logger)
	logger.Info("email delivery configured", "provider", provider, "mode", cfg.NotifyMode)

	vehicleService := vehicles.NewService(stores.Vehicles, logger.Component("vehicles"))
	appointmentService := appointments.NewService(
		stores.Appointments,
		appointments.NewValidator(loc, cfg.DefaultRegion, nil),
		logger.Component("appointments"),
		appointments.WithNotifier(notifier),
		appointments.WithVehicleLookup(vehicleService),
		appointments.WithMetrics(apptMetrics),
	)
	availability := appointments.NewAvailabilityCalculator(stores.Appointments, template, loc, apptMetrics, logger.Component("availability"))

	if cfg.AdminJWTSecret == "" {
		logger.Warn("ADMIN_JWT_SECRET not set; admin endpoints are unauthenticated")
	}

	app.handler = router.New(&router.Config{
		Logger:             logger,
		Appointments:       appointments.NewHandler(appointmentService, availability, logger),
		Vehicles:           vehicles.NewHandler(vehicleService, logger),
		Health:             router.NewHealthHandler(stores.Checks, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		BookingLimiter:     httpmiddleware.NewRateLimiter(ctx, cfg.BookingRateLimitPerSecond, cfg.BookingRateLimitBurst),
	})
	return app, nil
}

func waitForWorker(ctx context.Context, worker *notify.Worker, logger *logging.Logger) {
	done := make(chan struct{})
	go func() {
		worker.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("notification worker stopped")
	case <-ctx.Done():
		logger.Error("notification worker shutdown timed out", "error", ctx.Err())
	}
}
