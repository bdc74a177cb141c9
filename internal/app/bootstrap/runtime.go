package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/dealership-platform/internal/api/router"
	"github.com/wolfman30/dealership-platform/internal/appointments"
	appconfig "github.com/wolfman30/dealership-platform/internal/config"
	"github.com/wolfman30/dealership-platform/internal/notify"
	"github.com/wolfman30/dealership-platform/internal/observability/metrics"
	"github.com/wolfman30/dealership-platform/internal/vehicles"
	"github.com/wolfman30/dealership-platform/pkg/logging"
)

// Store backends accepted in STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err, "addr", cfg.RedisAddr)
		_ = client.Close()
		return nil
	}
	return client
}

// Stores holds the repositories chosen for this process and the readiness
// checks for the dependencies behind them.
type Stores struct {
	Appointments appointments.Repository
	Vehicles     vehicles.Repository
	Checks       map[string]router.Check
	Backend      string

	closers []func()
}

// Close releases the underlying connections.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// BuildStores selects repositories for cfg.StoreBackend. Redis and Postgres
// must be reachable at startup; the memory backend never fails.
func BuildStores(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*Stores, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	backend := strings.ToLower(strings.TrimSpace(cfg.StoreBackend))
	if backend == "" {
		backend = BackendRedis
	}
	stores := &Stores{Checks: map[string]router.Check{}, Backend: backend}

	switch backend {
	case BackendMemory:
		stores.Appointments = appointments.NewMemoryRepository()
		stores.Vehicles = vehicles.NewMemoryRepository()
		logger.Warn("using in-memory stores; data is lost on restart")

	case BackendRedis:
		client := BuildRedisClient(ctx, cfg, logger, true)
		if client == nil {
			return nil, fmt.Errorf("bootstrap: redis backend selected but %q is unreachable", cfg.RedisAddr)
		}
		stores.closers = append(stores.closers, func() { _ = client.Close() })
		stores.Appointments = appointments.NewRedisRepository(client)
		stores.Vehicles = vehicles.NewRedisRepository(client)
		stores.Checks["redis"] = router.RedisCheck(client)

	case BackendPostgres:
		pool, db, err := BuildPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		stores.closers = append(stores.closers, pool.Close, func() { _ = db.Close() })
		stores.Appointments = appointments.NewPostgresRepository(pool)
		stores.Checks["postgres"] = router.SQLCheck(db)

		// The catalog stays in Redis when one is configured.
		if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
			stores.closers = append(stores.closers, func() { _ = client.Close() })
			stores.Vehicles = vehicles.NewRedisRepository(client)
			stores.Checks["redis"] = router.RedisCheck(client)
		} else {
			logger.Warn("redis unavailable; vehicle catalog kept in memory")
			stores.Vehicles = vehicles.NewMemoryRepository()
		}

	default:
		return nil, fmt.Errorf("bootstrap: unknown store backend %q", cfg.StoreBackend)
	}

	logger.Info("stores configured", "backend", backend)
	return stores, nil
}

// BuildPostgres opens a pgx pool and a database/sql handle over the same pool
// for health checks.
func BuildPostgres(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, *sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, fmt.Errorf("bootstrap: DATABASE_URL is required for the postgres backend")
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, stdlib.OpenDBFromPool(pool), nil
}

// NeedsAWS reports whether the configured email provider or queue requires an
// AWS SDK configuration.
func NeedsAWS(cfg *appconfig.Config) bool {
	return cfg.EmailProvider == "ses" || cfg.UsesSQS()
}

// BuildEmailSender picks the email transport from cfg.EmailProvider. A provider
// that is selected but not configured falls back to the stub sender, which only
// logs. The returned string names the provider in use.
func BuildEmailSender(cfg *appconfig.Config, awsCfg *aws.Config, logger *logging.Logger) (notify.EmailSender, string) {
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.EmailProvider {
	case "sendgrid":
		sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.EmailFromName,
		}, logger)
		if sender != nil && cfg.SendGridFromEmail != "" {
			return sender, "sendgrid"
		}
		logger.Warn("sendgrid selected but SENDGRID_API_KEY or SENDGRID_FROM_EMAIL missing; using stub sender")
	case "ses":
		if awsCfg != nil && cfg.SESFromEmail != "" {
			sender := notify.NewSESSender(sesv2.NewFromConfig(*awsCfg), notify.SESConfig{
				FromEmail:        cfg.SESFromEmail,
				FromName:         cfg.EmailFromName,
				ConfigurationSet: cfg.SESConfigurationSet,
			}, logger)
			return sender, "ses"
		}
		logger.Warn("ses selected but aws config or SES_FROM_EMAIL missing; using stub sender")
	case "", "stub":
	default:
		logger.Warn("unknown email provider; using stub sender", "provider", cfg.EmailProvider)
	}
	return notify.NewStubEmailSender(logger), "stub"
}

// BuildDispatcher wires the inline dispatcher that renders and sends emails.
func BuildDispatcher(cfg *appconfig.Config, sender notify.EmailSender, m *metrics.NotificationMetrics, logger *logging.Logger) (*notify.Dispatcher, error) {
	if logger == nil {
		logger = logging.Default()
	}
	renderer, err := notify.NewRenderer(notify.Brand{
		BusinessName:  cfg.BusinessName,
		OwnerEmail:    cfg.OwnerEmail,
		OwnerName:     cfg.OwnerName,
		PublicBaseURL: cfg.PublicBaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: email templates: %w", err)
	}
	if strings.TrimSpace(cfg.OwnerEmail) == "" {
		logger.Warn("OWNER_EMAIL not set; owner alerts will fail")
	}
	return notify.NewDispatcher(renderer, sender, m, logger), nil
}

// BuildNotificationQueue returns the SQS queue when configured, otherwise an
// in-process queue.
func BuildNotificationQueue(cfg *appconfig.Config, awsCfg *aws.Config) notify.Queue {
	if cfg.UsesSQS() && awsCfg != nil {
		return notify.NewSQSQueue(sqs.NewFromConfig(*awsCfg), cfg.NotificationQueueURL)
	}
	return notify.NewMemoryQueue(0)
}

// BuildNotifier returns what the appointment service hands emails to. In
// queue mode the returned queue must be drained by a notify.Worker.
func BuildNotifier(cfg *appconfig.Config, dispatcher *notify.Dispatcher, queue notify.Queue, m *metrics.NotificationMetrics, logger *logging.Logger) notify.Notifier {
	if cfg.NotifyMode == "queue" && queue != nil {
		return notify.NewQueuedDispatcher(queue, m, logger)
	}
	return dispatcher
}

// WorkerOptions maps the worker settings in cfg onto notify.WorkerOption values.
func WorkerOptions(cfg *appconfig.Config) []notify.WorkerOption {
	return []notify.WorkerOption{
		notify.WithReceiveWaitSeconds(int(cfg.NotifyWorkerPoll / time.Second)),
	}
}
