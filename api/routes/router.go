package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/bagflow-backend/api/controllers"
	bagcontrollers "github.com/angelmondragon/bagflow-backend/api/controllers/bags"
	couriercontrollers "github.com/angelmondragon/bagflow-backend/api/controllers/couriers"
	webhookcontrollers "github.com/angelmondragon/bagflow-backend/api/controllers/webhooks"
	"github.com/angelmondragon/bagflow-backend/api/middleware"
	"github.com/angelmondragon/bagflow-backend/pkg/config"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/bagflow-backend/pkg/redis"
)

// Params carries everything the HTTP surface routes to.
type Params struct {
	Config      *config.Config
	Logger      *logger.Logger
	Readiness   map[string]controllers.Pinger
	Idempotency pkgredis.IdempotencyStore
	Gatherer    prometheus.Gatherer

	Bags             bagcontrollers.Service
	Jobs             couriercontrollers.JobSource
	Hub              couriercontrollers.Streamer
	Upgrader         *websocket.Upgrader
	PaymentWebhooks  webhookcontrollers.PaymentWebhookService
	WebhookSignature interface {
		VerifyWebhookSignature(body []byte, header string) bool
	}
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, p.Readiness))
	})
	r.Handle("/metrics", metricsHandler(p.Gatherer))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/payments", webhookcontrollers.Payments(p.PaymentWebhooks, p.WebhookSignature, logg))
	})

	idem := middleware.Idempotency(p.Idempotency, logg)
	client := middleware.RequireRole(logg, enums.ActorRoleClient)
	store := middleware.RequireRole(logg, enums.ActorRoleStore)
	courier := middleware.RequireRole(logg, enums.ActorRoleCourier)
	clientOrStore := middleware.RequireRole(logg, enums.ActorRoleClient, enums.ActorRoleStore)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/bags", func(r chi.Router) {
			r.With(client, idem).Post("/", bagcontrollers.Create(p.Bags, logg))
			r.Get("/", bagcontrollers.List(p.Bags, logg))

			r.Route("/{bagId}", func(r chi.Router) {
				r.Get("/", bagcontrollers.Get(p.Bags, logg))
				r.With(client, idem).Post("/authorize", bagcontrollers.Authorize(p.Bags, logg))
				r.With(store).Post("/review", bagcontrollers.Review(p.Bags, logg))
				r.With(store).Post("/store-action", bagcontrollers.StoreAction(p.Bags, logg))
				r.With(store).Post("/extras", bagcontrollers.Extras(p.Bags, logg))
				r.With(store).Post("/request-courier", bagcontrollers.RequestCourier(p.Bags, logg))
				r.With(courier).Post("/accept", bagcontrollers.Accept(p.Bags, logg))
				r.With(courier).Post("/confirm-pickup", bagcontrollers.ConfirmPickup(p.Bags, logg))
				r.With(courier).Post("/confirm-delivery", bagcontrollers.ConfirmDelivery(p.Bags, logg))
				r.With(client, idem).Post("/confirm-purchase", bagcontrollers.ConfirmPurchase(p.Bags, logg))
				r.With(courier).Post("/confirm-return-pickup", bagcontrollers.ConfirmReturnPickup(p.Bags, logg))
				r.With(courier).Post("/confirm-return-delivery", bagcontrollers.ConfirmReturnDelivery(p.Bags, logg))
				r.With(store, idem).Put("/confirm-return", bagcontrollers.ConfirmReturn(p.Bags, logg))
				r.With(clientOrStore, idem).Post("/cancel", bagcontrollers.Cancel(p.Bags, logg))
			})
		})

		r.Route("/couriers", func(r chi.Router) {
			r.Use(courier)
			r.Get("/jobs", couriercontrollers.Jobs(p.Jobs, logg))
			r.Get("/stream", couriercontrollers.Stream(p.Jobs, p.Hub, p.Upgrader, logg))
		})
	})

	return r
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
