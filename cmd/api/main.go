package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/bagflow-backend/api/controllers"
	couriercontrollers "github.com/angelmondragon/bagflow-backend/api/controllers/couriers"
	"github.com/angelmondragon/bagflow-backend/api/routes"
	"github.com/angelmondragon/bagflow-backend/internal/app"
	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/migrate"
	"github.com/angelmondragon/bagflow-backend/pkg/redis"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"addr":        addr,
		"serviceKind": cfg.Service.Kind,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config: cfg,
			Logger: logg,
			Readiness: map[string]controllers.Pinger{
				"database": dbClient,
				"redis":    redisClient,
			},
			Idempotency:      redisClient,
			Gatherer:         prometheus.DefaultGatherer,
			Bags:             services.Bags,
			Jobs:             services.Dispatch,
			Hub:              services.Hub,
			Upgrader:         couriercontrollers.NewUpgrader(cfg.App.CORSOrigins),
			PaymentWebhooks:  services.Webhooks,
			WebhookSignature: services.Square,
		}),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logg.Info(groupCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		if err := services.Relay.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logg.Info(ctx, "api server shutting down gracefully")
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
