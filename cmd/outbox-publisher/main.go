package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/kafka"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/migrate"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox/registry"
	"github.com/angelmondragon/bagflow-backend/pkg/pubsub"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "outbox-publisher"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "outbox-publisher"

	logg = logger.New(logger.Options{
		ServiceName: "outbox-publisher",
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

	broker, topic, closeSink, err := buildSink(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap broker sink", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeSink(); err != nil {
			logg.Error(context.Background(), "error closing broker sink", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(topic)
	if err != nil {
		logg.Error(context.Background(), "failed to build event registry", err)
		os.Exit(1)
	}
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            dbClient,
		Sink:          broker,
		Repository:    outbox.NewRepository(dbClient.DB()),
		Registry:      eventRegistry,
		DLQRepository: outbox.NewDLQRepository(dbClient.DB()),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox publisher", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "outbox-publisher",
		"sink":        broker.Name(),
		"topic":       topic,
	})
	logg.Info(ctx, "starting outbox publisher")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "outbox publisher stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "outbox publisher shutting down gracefully")
}

// buildSink picks the broker from BAGFLOW_OUTBOX_SINK and returns the topic
// every event is routed to.
func buildSink(ctx context.Context, cfg *config.Config, logg *logger.Logger) (sink, string, func() error, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Outbox.Sink)) {
	case config.OutboxSinkPubSub:
		client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
		if err != nil {
			return nil, "", nil, err
		}
		return newPubSubSink(client, nil), cfg.PubSub.DomainTopic, client.Close, nil
	default:
		writer, err := kafka.NewWriter(cfg.Kafka, logg)
		if err != nil {
			return nil, "", nil, err
		}
		return newKafkaSink(writer), cfg.Kafka.Topic, writer.Close, nil
	}
}
