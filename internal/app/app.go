// Package app assembles the fulfillment services shared by the API and the
// cron worker from their infrastructure clients.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/bagflow-backend/internal/bags"
	"github.com/angelmondragon/bagflow-backend/internal/catalog"
	"github.com/angelmondragon/bagflow-backend/internal/dispatch"
	"github.com/angelmondragon/bagflow-backend/internal/handoff"
	"github.com/angelmondragon/bagflow-backend/internal/ledger"
	"github.com/angelmondragon/bagflow-backend/internal/payments"
	paymentwebhook "github.com/angelmondragon/bagflow-backend/internal/webhooks/payments"
	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/maps"
	"github.com/angelmondragon/bagflow-backend/pkg/metrics"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/bagflow-backend/pkg/redis"
	"github.com/angelmondragon/bagflow-backend/pkg/square"
)

type Params struct {
	Config     *config.Config
	Logger     *logger.Logger
	DB         *db.Client
	Redis      *redis.Client
	Registerer prometheus.Registerer
	// Gateway overrides the configured payment provider.
	Gateway payments.Gateway
}

// Services is the assembled fulfillment core. Hub is only used by
// processes that hold courier connections.
type Services struct {
	Bags        *bags.Service
	Dispatch    *dispatch.Service
	Hub         *dispatch.Hub
	Relay       *dispatch.Relay
	Ledger      *ledger.Service
	Handoff     *handoff.Service
	HandoffRepo handoff.Repository
	Webhooks    *paymentwebhook.Service
	Square      *square.Client
	Outbox      *outbox.Repository
	Metrics     *metrics.FulfillmentMetrics
}

func Build(ctx context.Context, params Params) (*Services, error) {
	cfg := params.Config
	if cfg == nil || params.DB == nil || params.Redis == nil {
		return nil, fmt.Errorf("config, db and redis are required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	out := &Services{Metrics: metrics.NewFulfillmentMetrics(params.Registerer)}
	conn := params.DB.DB()

	gateway, err := buildGateway(ctx, params, logg, out)
	if err != nil {
		return nil, err
	}

	out.Outbox = outbox.NewRepository(conn)
	emitter := outbox.NewService(out.Outbox, logg)

	out.HandoffRepo = handoff.NewRepository(conn)
	out.Handoff, err = handoff.NewService(handoff.ServiceParams{
		Repo:           out.HandoffRepo,
		Limiter:        params.Redis,
		Logger:         logg,
		Metrics:        out.Metrics,
		TTL:            cfg.Handoff.TokenTTL,
		VerifyAttempts: cfg.Handoff.VerifyAttempts,
		VerifyWindow:   cfg.Handoff.VerifyWindow,
	})
	if err != nil {
		return nil, fmt.Errorf("handoff service: %w", err)
	}

	out.Ledger, err = ledger.NewService(ledger.ServiceParams{
		Repo:               ledger.NewRepository(conn),
		DB:                 params.DB,
		Gateway:            gateway,
		Outbox:             emitter,
		Logger:             logg,
		CautionAmountCents: cfg.Payments.CautionAmountCents,
		Currency:           cfg.Payments.Currency,
	})
	if err != nil {
		return nil, fmt.Errorf("ledger service: %w", err)
	}

	var router dispatch.Router
	if cfg.GoogleMaps.APIKey != "" {
		mapsClient, err := maps.NewClient(cfg.GoogleMaps.APIKey)
		if err != nil {
			return nil, fmt.Errorf("maps client: %w", err)
		}
		router = mapsClient
	}
	out.Hub = dispatch.NewHub(dispatch.HubParams{
		Logger:       logg,
		Metrics:      out.Metrics,
		WriteTimeout: cfg.Dispatch.WriteTimeout,
		PingInterval: cfg.Dispatch.PingInterval,
		SendBuffer:   cfg.Dispatch.SendBuffer,
	})
	out.Relay, err = dispatch.NewRelay(params.Redis, cfg.Dispatch.Channel, out.Hub, logg)
	if err != nil {
		return nil, fmt.Errorf("dispatch relay: %w", err)
	}
	out.Dispatch, err = dispatch.NewService(dispatch.ServiceParams{
		Repo:        dispatch.NewRepository(conn),
		Fees:        dispatch.NewFeeCalculator(cfg.Pricing, router, logg),
		Broadcaster: out.Relay,
		Outbox:      emitter,
		Logger:      logg,
		Metrics:     out.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("dispatch service: %w", err)
	}

	out.Bags, err = bags.NewService(bags.ServiceParams{
		Repo:     bags.NewRepository(conn),
		DB:       params.DB,
		Catalog:  catalog.NewRepository(conn),
		Tokens:   out.Handoff,
		Ledger:   out.Ledger,
		Dispatch: out.Dispatch,
		Outbox:   emitter,
		Logger:   logg,
		Metrics:  out.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("bag service: %w", err)
	}

	guard, err := idempotency.NewManager(params.Redis, cfg.Payments.WebhookDedupeTTL)
	if err != nil {
		return nil, fmt.Errorf("webhook guard: %w", err)
	}
	out.Webhooks, err = paymentwebhook.NewService(paymentwebhook.ServiceParams{
		Ledger:  out.Ledger,
		Gateway: gateway,
		Guard:   guard,
		Logger:  logg,
		Metrics: out.Metrics,
		Timeout: cfg.Payments.GatewayTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("webhook service: %w", err)
	}
	return out, nil
}

func buildGateway(ctx context.Context, params Params, logg *logger.Logger, out *Services) (payments.Gateway, error) {
	cfg := params.Config
	next := params.Gateway
	switch {
	case next != nil:
	case cfg.Payments.UsesFakeGateway():
		logg.Warn(ctx, "using in-memory payment gateway")
		next = payments.NewFakeGateway()
	default:
		client, err := square.NewClient(ctx, cfg.Square, logg)
		if err != nil {
			return nil, fmt.Errorf("square client: %w", err)
		}
		out.Square = client
		next, err = payments.NewSquareGateway(client)
		if err != nil {
			return nil, fmt.Errorf("square gateway: %w", err)
		}
	}
	return payments.NewResilient(payments.ResilientParams{
		Gateway: next,
		Config:  cfg.Payments,
		Logger:  logg,
		Metrics: out.Metrics,
	})
}
