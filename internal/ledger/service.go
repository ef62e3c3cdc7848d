package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/internal/payments"
	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox/payloads"
)

const maxFailureReason = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the payment ledger.
type ServiceParams struct {
	Repo               Repository
	DB                 txRunner
	Gateway            payments.Gateway
	Outbox             outbox.Emitter
	Logger             *logger.Logger
	CautionAmountCents int64
	Currency           string
	Clock              func() time.Time
}

// Service records every money movement of a bag and drives the gateway.
// Gateway calls never run inside a database transaction: the PENDING entry
// is committed first, the gateway is called, and the outcome is written back
// under the bag row lock.
type Service struct {
	repo     Repository
	db       txRunner
	gateway  payments.Gateway
	outbox   outbox.Emitter
	logg     *logger.Logger
	caution  int64
	currency string
	now      func() time.Time
}

// ReconcileResult reports what a status report did to its ledger entry.
type ReconcileResult struct {
	Entry   *models.LedgerEntry
	Changed bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "ledger repository required")
	}
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment gateway required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.CautionAmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "caution amount must be positive")
	}
	currency := params.Currency
	if currency == "" {
		currency = "USD"
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &Service{
		repo:     params.Repo,
		db:       params.DB,
		gateway:  params.Gateway,
		outbox:   params.Outbox,
		logg:     logg,
		caution:  params.CautionAmountCents,
		currency: currency,
		now:      now,
	}, nil
}

// CautionAmountCents is the hold placed on every new bag.
func (s *Service) CautionAmountCents() int64 {
	return s.caution
}

// Currency is the currency every entry is booked in.
func (s *Service) Currency() string {
	return s.currency
}

// PrepareAuthorization writes the PENDING caution hold for bag on tx.
func (s *Service) PrepareAuthorization(ctx context.Context, tx *gorm.DB, bag *models.Bag) (*models.LedgerEntry, error) {
	entry := s.newEntry(bag, enums.LedgerKindAuthorization, s.caution, nil)
	if err := s.record(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Authorize submits a prepared AUTHORIZATION to the gateway. A failure leaves
// the bag where it is and surfaces as PAYMENT_GATEWAY_ERROR.
func (s *Service) Authorize(ctx context.Context, bag *models.Bag, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	if entry.Kind != enums.LedgerKindAuthorization {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "entry is not an authorization")
	}
	if entry.PaymentStatus.IsTerminal() {
		return entry, nil
	}
	result, callErr := s.gateway.Authorize(ctx, payments.AuthorizeRequest{
		IdempotencyKey: entry.IdempotencyKey,
		SourceID:       bag.PaymentSourceID,
		AmountCents:    entry.AmountCents,
		Currency:       entry.Currency,
		ReferenceID:    bag.ID.String(),
		Note:           "bag caution hold",
	})
	return s.settle(ctx, entry, result, callErr, "authorization")
}

// RetryAuthorization places a new hold after the previous one failed, or
// resubmits one whose outcome never came back.
func (s *Service) RetryAuthorization(ctx context.Context, bagID uuid.UUID) (*models.LedgerEntry, error) {
	var (
		bag   *models.Bag
		entry *models.LedgerEntry
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if bag, err = repo.LockBag(ctx, bagID); err != nil {
			return err
		}
		if bag.Status != enums.BagStatusRequested && bag.Status != enums.BagStatusUnderReview {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "caution can only be retried before the store accepts")
		}
		latest, err := repo.Latest(ctx, bagID, enums.LedgerKindAuthorization)
		if err != nil {
			return err
		}
		switch {
		case latest == nil || latest.PaymentStatus == enums.PaymentStatusFailed:
			entry = s.newEntry(bag, enums.LedgerKindAuthorization, s.caution, nil)
			return s.record(ctx, tx, entry)
		case latest.PaymentStatus == enums.PaymentStatusPending && latest.GatewayReference == nil:
			entry = latest
			return nil
		default:
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "caution hold already in place")
		}
	})
	if err != nil {
		return nil, err
	}
	return s.Authorize(ctx, bag, entry)
}

// CaptureFinal charges kept items, shipping and insurance for a bag whose
// return is in the store's hands. It never creates a second live CAPTURE:
// a retry resumes the existing entry with the same idempotency key. A zero
// total records nothing and returns nil.
func (s *Service) CaptureFinal(ctx context.Context, bagID uuid.UUID) (*models.LedgerEntry, error) {
	var (
		bag   *models.Bag
		entry *models.LedgerEntry
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		if bag, err = repo.LockBag(ctx, bagID); err != nil {
			return err
		}
		existing, err := repo.FindLive(ctx, bagID, enums.LedgerKindCapture)
		if err != nil {
			return err
		}
		if existing != nil {
			entry = existing
			return nil
		}
		if bag.Status != enums.BagStatusInTransitReturn {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "bag is not awaiting final settlement")
		}
		items, err := repo.ListItems(ctx, bagID)
		if err != nil {
			return err
		}
		totals := ComputeTotals(items, bag.ShippingFeeCents)
		if totals.CaptureTotalCents == 0 {
			return nil
		}
		entry = s.newEntry(bag, enums.LedgerKindCapture, totals.CaptureTotalCents, nil)
		return s.record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	if entry.PaymentStatus.IsTerminal() || entry.GatewayReference != nil {
		return entry, nil
	}

	result, callErr := s.gateway.Charge(ctx, payments.ChargeRequest{
		IdempotencyKey: entry.IdempotencyKey,
		SourceID:       bag.PaymentSourceID,
		AmountCents:    entry.AmountCents,
		Currency:       entry.Currency,
		ReferenceID:    bag.ID.String(),
		Note:           "bag final settlement",
	})
	return s.settle(ctx, entry, result, callErr, "capture")
}

// PrepareRefund records the release of the caution hold on tx, referencing
// the authorization's gateway payment. It returns nil when there is no live
// authorization and the existing REFUND when one was already recorded.
func (s *Service) PrepareRefund(ctx context.Context, tx *gorm.DB, bag *models.Bag) (*models.LedgerEntry, error) {
	repo := s.repo.WithTx(tx)
	auth, err := repo.FindLive(ctx, bag.ID, enums.LedgerKindAuthorization)
	if err != nil {
		return nil, err
	}
	if auth == nil {
		return nil, nil
	}
	existing, err := repo.FindLive(ctx, bag.ID, enums.LedgerKindRefund)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if auth.GatewayReference == nil {
		// the gateway never confirmed this hold; an unconfirmed hold lapses on its own
		reason := "released before gateway confirmation"
		if err := s.transition(ctx, tx, auth, enums.PaymentStatusFailed, nil, &reason); err != nil {
			return nil, err
		}
	}
	refund := s.newEntry(bag, enums.LedgerKindRefund, auth.AmountCents, auth.GatewayReference)
	if err := s.record(ctx, tx, refund); err != nil {
		return nil, err
	}
	return refund, nil
}

// SubmitRefund voids the authorization a prepared REFUND points at.
func (s *Service) SubmitRefund(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error) {
	if entry == nil || entry.PaymentStatus.IsTerminal() {
		return entry, nil
	}
	if entry.ParentReference == nil {
		return s.settle(ctx, entry, payments.Result{Status: enums.GatewayStatusCancelled}, nil, "refund")
	}
	result, callErr := s.gateway.Void(ctx, *entry.ParentReference, entry.IdempotencyKey)
	return s.settle(ctx, entry, result, callErr, "refund")
}

// FindByReference returns the entry the gateway knows as reference, or
// NOT_FOUND.
func (s *Service) FindByReference(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	return s.repo.FindByGatewayReference(ctx, reference)
}

// Reconcile applies a gateway status report to the entry owning reference.
// Reports never move an entry backwards, so replays are no-ops.
func (s *Service) Reconcile(ctx context.Context, reference string, status enums.GatewayStatus) (*ReconcileResult, error) {
	if !status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown gateway status")
	}
	found, err := s.repo.FindByGatewayReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	out := &ReconcileResult{}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.LockBag(ctx, found.BagID); err != nil {
			return err
		}
		current, err := repo.FindByID(ctx, found.ID)
		if err != nil {
			return err
		}
		next := statusFor(current.Kind, status)
		out.Entry = current
		if !advances(current.PaymentStatus, next) {
			return nil
		}
		var reason *string
		if next == enums.PaymentStatusFailed {
			r := "gateway reported " + status.String()
			reason = &r
		}
		if err := s.transition(ctx, tx, current, next, nil, reason); err != nil {
			return err
		}
		out.Changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ReconcileStale polls the gateway for entries stuck in PENDING/PROCESSING
// and resubmits refunds whose void never went through.
func (s *Service) ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	entries, err := s.repo.ListStale(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, err
	}
	changed := 0
	var errs error
	for i := range entries {
		entry := entries[i]
		entryCtx := s.logg.WithField(ctx, "ledger_entry_id", entry.ID.String())
		if entry.Kind == enums.LedgerKindRefund {
			updated, err := s.SubmitRefund(entryCtx, &entry)
			if err != nil {
				s.logg.Warn(s.logg.WithField(entryCtx, "error", err.Error()), "stale refund resubmission failed")
				errs = multierr.Append(errs, err)
				continue
			}
			if updated != nil && updated.PaymentStatus != entry.PaymentStatus {
				changed++
			}
			continue
		}
		result, err := s.gateway.PaymentStatus(entryCtx, *entry.GatewayReference)
		if err != nil {
			s.logg.Warn(s.logg.WithField(entryCtx, "error", err.Error()), "stale payment status lookup failed")
			errs = multierr.Append(errs, err)
			continue
		}
		res, err := s.Reconcile(entryCtx, *entry.GatewayReference, result.Status)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if res.Changed {
			changed++
		}
	}
	return changed, errs
}

// HasConfirmedAuthorization reports whether the bag holds a caution the
// gateway acknowledged. A PENDING entry without a gateway reference never
// reached the gateway and does not count.
func (s *Service) HasConfirmedAuthorization(ctx context.Context, tx *gorm.DB, bagID uuid.UUID) (bool, error) {
	auth, err := s.repo.WithTx(tx).FindLive(ctx, bagID, enums.LedgerKindAuthorization)
	if err != nil {
		return false, err
	}
	if auth == nil {
		return false, nil
	}
	switch auth.PaymentStatus {
	case enums.PaymentStatusApproved, enums.PaymentStatusProcessing:
		return true, nil
	}
	return auth.GatewayReference != nil, nil
}

// ListForBag returns every entry of the bag in creation order.
func (s *Service) ListForBag(ctx context.Context, bagID uuid.UUID) ([]models.LedgerEntry, error) {
	return s.repo.ListByBag(ctx, bagID)
}

func (s *Service) settle(ctx context.Context, entry *models.LedgerEntry, result payments.Result, callErr error, op string) (*models.LedgerEntry, error) {
	updated, err := s.applyOutcome(ctx, entry, result, callErr)
	if err != nil {
		return nil, err
	}
	if callErr != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"ledger_entry_id": entry.ID.String(),
			"operation":       op,
		}), "payment gateway call failed", callErr)
		if pkgerrors.Is(callErr, pkgerrors.CodePaymentGateway) {
			return updated, callErr
		}
		return updated, pkgerrors.Wrap(pkgerrors.CodePaymentGateway, callErr, "payment gateway "+op+" failed")
	}
	if updated.PaymentStatus == enums.PaymentStatusFailed {
		return updated, pkgerrors.New(pkgerrors.CodePaymentGateway, op+" rejected by payment gateway")
	}
	return updated, nil
}

// applyOutcome writes the answer of a gateway call. An unknown outcome leaves
// the entry PENDING so the same idempotency key can be resubmitted.
func (s *Service) applyOutcome(ctx context.Context, entry *models.LedgerEntry, result payments.Result, callErr error) (*models.LedgerEntry, error) {
	var updated *models.LedgerEntry
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.LockBag(ctx, entry.BagID); err != nil {
			return err
		}
		current, err := repo.FindByID(ctx, entry.ID)
		if err != nil {
			return err
		}
		updated = current
		if current.PaymentStatus.IsTerminal() {
			return nil
		}

		var (
			next      enums.PaymentStatus
			reference *string
			reason    *string
		)
		if callErr != nil {
			if !payments.IsDecline(callErr) {
				return nil
			}
			next = enums.PaymentStatusFailed
			msg := truncate(callErr.Error(), maxFailureReason)
			reason = &msg
		} else {
			next = statusFor(current.Kind, result.Status)
			if current.Kind != enums.LedgerKindRefund && result.Reference != "" && current.GatewayReference == nil {
				ref := result.Reference
				reference = &ref
			}
			if next == enums.PaymentStatusFailed {
				msg := "gateway reported " + result.Status.String()
				reason = &msg
			}
		}
		if !advances(current.PaymentStatus, next) && reference == nil {
			return nil
		}
		if !advances(current.PaymentStatus, next) {
			next = current.PaymentStatus
		}
		return s.transition(ctx, tx, current, next, reference, reason)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// transition persists a status move on tx and mutates entry in place.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, entry *models.LedgerEntry, next enums.PaymentStatus, reference, reason *string) error {
	repo := s.repo.WithTx(tx)
	updates := map[string]any{"payment_status": next}
	if reference != nil {
		updates["gateway_reference"] = *reference
	}
	if reason != nil {
		updates["failure_reason"] = *reason
	}
	if err := repo.Update(ctx, entry.ID, updates); err != nil {
		return err
	}
	entry.PaymentStatus = next
	if reference != nil {
		entry.GatewayReference = reference
	}
	if reason != nil {
		entry.FailureReason = reason
	}
	if entry.Kind == enums.LedgerKindAuthorization && next == enums.PaymentStatusApproved {
		if err := repo.MarkCautionAuthorized(ctx, entry.BagID, s.now()); err != nil {
			return err
		}
	}
	return s.emit(ctx, tx, enums.EventLedgerEntryUpdated, entry)
}

func (s *Service) newEntry(bag *models.Bag, kind enums.LedgerKind, amount int64, parent *string) *models.LedgerEntry {
	id := uuid.New()
	currency := bag.Currency
	if currency == "" {
		currency = s.currency
	}
	return &models.LedgerEntry{
		ID:              id,
		BagID:           bag.ID,
		ClientID:        bag.ClientID,
		Kind:            kind,
		AmountCents:     amount,
		Currency:        currency,
		PaymentStatus:   enums.PaymentStatusPending,
		ParentReference: parent,
		IdempotencyKey:  id.String(),
	}
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, entry *models.LedgerEntry) error {
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return err
	}
	return s.emit(ctx, tx, enums.EventLedgerEntryRecorded, entry)
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, entry *models.LedgerEntry) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateLedgerEntry,
		AggregateID:   entry.ID,
		Data: payloads.LedgerEntryEvent{
			EntryID:          entry.ID,
			BagID:            entry.BagID,
			Kind:             entry.Kind,
			AmountCents:      entry.AmountCents,
			Currency:         entry.Currency,
			PaymentStatus:    entry.PaymentStatus,
			GatewayReference: entry.GatewayReference,
		},
	})
}

// statusFor maps a gateway answer onto the entry. A cancelled payment is the
// successful outcome of a refund, which voids the hold.
func statusFor(kind enums.LedgerKind, status enums.GatewayStatus) enums.PaymentStatus {
	if kind == enums.LedgerKindRefund && status == enums.GatewayStatusCancelled {
		return enums.PaymentStatusApproved
	}
	return status.PaymentStatus()
}

func advances(current, next enums.PaymentStatus) bool {
	if current.IsTerminal() {
		return false
	}
	return next.Rank() > current.Rank()
}

func truncate(message string, max int) string {
	if len(message) <= max {
		return message
	}
	return message[:max]
}
