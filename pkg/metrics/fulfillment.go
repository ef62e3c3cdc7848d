package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// FulfillmentMetrics tracks the bag lifecycle, courier dispatch and payment
// gateway traffic. A nil receiver is a no-op so services can run without a
// registry in tests.
type FulfillmentMetrics struct {
	transitions   *prometheus.CounterVec
	claims        *prometheus.CounterVec
	handoffs      *prometheus.CounterVec
	gatewayCalls  *prometheus.CounterVec
	gatewayTiming *prometheus.HistogramVec
	webhooks      *prometheus.CounterVec
	couriers      prometheus.Gauge
}

// NewFulfillmentMetrics registers the fulfillment collectors on reg.
func NewFulfillmentMetrics(reg prometheus.Registerer) *FulfillmentMetrics {
	if reg == nil {
		return nil
	}
	m := &FulfillmentMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bagflow_bag_transitions_total",
			Help: "Bag status transitions by target status.",
		}, []string{"to"}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bagflow_dispatch_claims_total",
			Help: "Courier claim attempts by outcome.",
		}, []string{"outcome"}),
		handoffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bagflow_handoff_verifications_total",
			Help: "Handoff code verifications by type and outcome.",
		}, []string{"type", "outcome"}),
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bagflow_gateway_calls_total",
			Help: "Payment gateway calls by operation and outcome.",
		}, []string{"op", "outcome"}),
		gatewayTiming: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bagflow_gateway_call_duration_seconds",
			Help:    "Payment gateway call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bagflow_payment_webhooks_total",
			Help: "Payment webhook deliveries by outcome.",
		}, []string{"outcome"}),
		couriers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bagflow_dispatch_connected_couriers",
			Help: "Couriers currently subscribed to the dispatch stream.",
		}),
	}
	reg.MustRegister(m.transitions, m.claims, m.handoffs, m.gatewayCalls, m.gatewayTiming, m.webhooks, m.couriers)
	return m
}

func (m *FulfillmentMetrics) IncTransition(to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(to)).Inc()
}

func (m *FulfillmentMetrics) IncClaim(outcome string) {
	if m == nil {
		return
	}
	m.claims.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *FulfillmentMetrics) IncHandoff(handoffType, outcome string) {
	if m == nil {
		return
	}
	m.handoffs.WithLabelValues(normalizeLabel(handoffType), normalizeLabel(outcome)).Inc()
}

// ObserveGatewayCall records one gateway round trip.
func (m *FulfillmentMetrics) ObserveGatewayCall(op string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.gatewayCalls.WithLabelValues(normalizeLabel(op), outcome).Inc()
	m.gatewayTiming.WithLabelValues(normalizeLabel(op)).Observe(elapsed.Seconds())
}

func (m *FulfillmentMetrics) IncWebhook(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *FulfillmentMetrics) CourierConnected() {
	if m == nil {
		return
	}
	m.couriers.Inc()
}

func (m *FulfillmentMetrics) CourierDisconnected() {
	if m == nil {
		return
	}
	m.couriers.Dec()
}
