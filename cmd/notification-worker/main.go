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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/dealership-platform/cmd/mainconfig"
	"github.com/wolfman30/dealership-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/dealership-platform/internal/config"
	"github.com/wolfman30/dealership-platform/internal/notify"
	"github.com/wolfman30/dealership-platform/internal/observability/metrics"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

const metricsAddr = ":9090"

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel).Component("notification-worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	worker, err := buildWorker(ctx, cfg, logger, reg)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}

	metricsSrv := &http.Server{Addr: metricsAddr, Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	worker.Start(ctx)
	logger.Info("notification worker running", "queue", cfg.NotificationQueueURL)
	<-ctx.Done()

	logger.Info("shutting down notification worker...")
	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()
	_ = metricsSrv.Shutdown(doneCtx)

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("notification worker stopped")
	case <-doneCtx.Done():
		logger.Error("notification worker shutdown timed out", "error", doneCtx.Err())
	}
}

// buildWorker drains the SQS notification queue. The in-process memory queue
// is handled by cmd/api itself, so SQS is required here.
func buildWorker(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, reg prometheus.Registerer) (*notify.Worker, error) {
	if !cfg.UsesSQS() {
		return nil, fmt.Errorf("NOTIFY_MODE=queue and NOTIFICATION_QUEUE_URL are required")
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	sender, provider := bootstrap.BuildEmailSender(cfg, &awsCfg, logger)
	dispatcher, err := bootstrap.BuildDispatcher(cfg, sender, metrics.NewNotificationMetrics(reg), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("email delivery configured", "provider", provider)

	queue := bootstrap.BuildNotificationQueue(cfg, &awsCfg)
	return notify.NewWorker(queue, dispatcher, logger, bootstrap.WorkerOptions(cfg)...), nil
}
