// Package paymentwebhook reconciles asynchronous payment gateway
// notifications against the ledger.
package paymentwebhook

import (
	"context"
	"strings"
	"time"

	"github.com/angelmondragon/bagflow-backend/internal/ledger"
	"github.com/angelmondragon/bagflow-backend/internal/payments"
	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/metrics"
)

const guardConsumer = "payment-webhooks"

// Outcome classifies what a notification did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeUnchanged Outcome = "unchanged"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeFailed    Outcome = "failed"
)

var handled = map[string]bool{
	"payment.created": true,
	"payment.updated": true,
}

// Event accepts both `{action, data:{id}}` and Square's
// `{type, event_id, data:{id, object:{payment:{id,status}}}}` shapes.
type Event struct {
	EventID string    `json:"event_id"`
	Type    string    `json:"type"`
	Action  string    `json:"action"`
	Data    EventData `json:"data"`
}

type EventData struct {
	ID     string      `json:"id"`
	Type   string      `json:"type"`
	Object EventObject `json:"object"`
}

type EventObject struct {
	Payment *EventPayment `json:"payment"`
}

type EventPayment struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// Kind is the notification type, whichever field carried it.
func (e Event) Kind() string {
	if e.Type != "" {
		return strings.ToLower(strings.TrimSpace(e.Type))
	}
	return strings.ToLower(strings.TrimSpace(e.Action))
}

// PaymentID is the gateway reference the notification is about.
func (e Event) PaymentID() string {
	if e.Data.Object.Payment != nil && e.Data.Object.Payment.ID != "" {
		return strings.TrimSpace(e.Data.Object.Payment.ID)
	}
	return strings.TrimSpace(e.Data.ID)
}

type reconciler interface {
	FindByReference(ctx context.Context, reference string) (*models.LedgerEntry, error)
	Reconcile(ctx context.Context, reference string, status enums.GatewayStatus) (*ledger.ReconcileResult, error)
}

type guard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, id string) (bool, error)
	Delete(ctx context.Context, consumer, id string) error
}

type ServiceParams struct {
	Ledger  reconciler
	Gateway payments.Gateway
	Guard   guard
	Logger  *logger.Logger
	Metrics *metrics.FulfillmentMetrics
	Timeout time.Duration
}

// Service applies gateway notifications. The gateway is asked for the
// payment's current status instead of trusting the body, so forged or
// reordered notifications cannot move an entry to a state the gateway does
// not report.
type Service struct {
	ledger  reconciler
	gateway payments.Gateway
	guard   guard
	logg    *logger.Logger
	metrics *metrics.FulfillmentMetrics
	timeout time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Service{
		ledger:  params.Ledger,
		gateway: params.Gateway,
		guard:   params.Guard,
		logg:    logg,
		metrics: params.Metrics,
		timeout: timeout,
	}, nil
}

// HandleEvent reconciles one notification. Unknown payments return
// NOT_FOUND without touching anything so the gateway retries later.
func (s *Service) HandleEvent(ctx context.Context, event *Event) (outcome Outcome, err error) {
	defer func() { s.metrics.IncWebhook(string(outcome)) }()

	if event == nil {
		return OutcomeFailed, pkgerrors.New(pkgerrors.CodeValidation, "payment event required")
	}
	kind := event.Kind()
	if !handled[kind] {
		return OutcomeIgnored, nil
	}
	paymentID := event.PaymentID()
	if paymentID == "" {
		return OutcomeFailed, pkgerrors.New(pkgerrors.CodeValidation, "payment id missing")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{"payment_id": paymentID, "event_type": kind})

	// payments the ledger never recorded are answered before the gateway is
	// asked, so they stay side-effect free even while it is down
	if _, err := s.ledger.FindByReference(ctx, paymentID); err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return OutcomeNotFound, err
		}
		return OutcomeFailed, err
	}

	lookupCtx, cancel := context.WithTimeout(ctx, s.timeout)
	result, err := s.gateway.PaymentStatus(lookupCtx, paymentID)
	cancel()
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return OutcomeNotFound, err
		}
		return OutcomeFailed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment status")
	}

	deliveryID := paymentID + ":" + result.Status.String()
	if s.guard != nil {
		seen, err := s.guard.CheckAndMarkProcessed(ctx, guardConsumer, deliveryID)
		if err != nil {
			// the ledger compare below keeps replays harmless without redis
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook idempotency guard unavailable")
		} else if seen {
			return OutcomeDuplicate, nil
		}
	}

	res, err := s.ledger.Reconcile(ctx, paymentID, result.Status)
	if err != nil {
		s.forget(ctx, deliveryID)
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return OutcomeNotFound, err
		}
		return OutcomeFailed, err
	}
	if !res.Changed {
		return OutcomeUnchanged, nil
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"ledger_entry_id": res.Entry.ID.String(),
		"payment_status":  res.Entry.PaymentStatus.String(),
	}), "payment webhook applied")
	return OutcomeApplied, nil
}

func (s *Service) forget(ctx context.Context, deliveryID string) {
	if s.guard == nil {
		return
	}
	if err := s.guard.Delete(ctx, guardConsumer, deliveryID); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook idempotency key not released")
	}
}
