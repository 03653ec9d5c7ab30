package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/osoriodev/vendelo-backend/internal/assignment"
	"github.com/osoriodev/vendelo-backend/internal/cron"
	"github.com/osoriodev/vendelo-backend/internal/distribution"
	"github.com/osoriodev/vendelo-backend/internal/notifications"
	"github.com/osoriodev/vendelo-backend/internal/queue"
	"github.com/osoriodev/vendelo-backend/pkg/config"
	"github.com/osoriodev/vendelo-backend/pkg/db"
	"github.com/osoriodev/vendelo-backend/pkg/logger"
	"github.com/osoriodev/vendelo-backend/pkg/metrics"
	"github.com/osoriodev/vendelo-backend/pkg/migrate"
	"github.com/osoriodev/vendelo-backend/pkg/outbox"
	"github.com/osoriodev/vendelo-backend/pkg/redis"
)

const lockKeyFormat = "vn:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxService := outbox.NewService(outboxRepo, logg)
	assignmentRepo := assignment.NewRepository(dbClient.DB())

	assignmentService, err := assignment.NewService(assignmentRepo, dbClient, outboxService)
	if err != nil {
		logg.Error(context.Background(), "failed to create assignment service", err)
		os.Exit(1)
	}

	distributionService, err := distribution.NewService(
		assignmentRepo,
		assignmentService,
		queue.NewRepository(dbClient.DB()),
		dbClient,
		outboxService,
		logg,
		cfg.Distribution.QueueDrainBatch,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create distribution service", err)
		os.Exit(1)
	}

	queueDrainJob, err := cron.NewQueueDrainJob(cron.QueueDrainJobParams{
		Logger:      logg,
		Distributor: distributionService,
		Metrics:     metricsCollector,
		Timeout:     cfg.Distribution.QueueDrainTimeout,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create queue drain job", err)
		os.Exit(1)
	}

	counterReconcileJob, err := cron.NewCounterReconcileJob(cron.CounterReconcileJobParams{
		Logger:     logg,
		Reconciler: assignmentRepo,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create counter reconcile job", err)
		os.Exit(1)
	}

	outboxRetentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: outboxRepo,
		Retention:  cfg.Outbox.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}

	notificationCleanupJob, err := cron.NewNotificationCleanupJob(cron.NotificationCleanupJobParams{
		Logger:     logg,
		DB:         dbClient,
		Repository: notifications.NewRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create notification cleanup job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(
		queueDrainJob,
		counterReconcileJob,
		outboxRetentionJob,
		notificationCleanupJob,
	)

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
