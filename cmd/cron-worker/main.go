package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bagflow-backend/internal/app"
	"github.com/angelmondragon/bagflow-backend/internal/cron"
	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/metrics"
	"github.com/angelmondragon/bagflow-backend/pkg/migrate"
	"github.com/angelmondragon/bagflow-backend/pkg/redis"
)

const lockKeyFormat = "bagflow:cron-worker:lock:%s"

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
		Format:      cfg.App.LogFormat,
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

	services, err := app.Build(context.Background(), app.Params{
		Config:     cfg,
		Logger:     logg,
		DB:         dbClient,
		Redis:      redisClient,
		Registerer: prometheus.DefaultRegisterer,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to assemble services", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, services)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

func buildRegistry(cfg *config.Config, logg *logger.Logger, services *app.Services) (*cron.Registry, error) {
	rebroadcast, err := cron.NewDispatchRebroadcastJob(cron.DispatchRebroadcastJobParams{
		Logger:    logg,
		Dispatch:  services.Dispatch,
		Age:       cfg.Dispatch.RebroadcastAge,
		BatchSize: cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	stale, err := cron.NewStalePaymentJob(cron.StalePaymentJobParams{
		Logger:     logg,
		Ledger:     services.Ledger,
		StaleAfter: cfg.Cron.StalePaymentAfter,
		BatchSize:  cfg.Cron.BatchSize,
	})
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  services.Outbox,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	handoffPurge, err := cron.NewHandoffPurgeJob(cron.HandoffPurgeJobParams{
		Logger:     logg,
		Repository: services.HandoffRepo,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(rebroadcast, stale, outboxRetention, handoffPurge)
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
