package bags

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/internal/catalog"
	"github.com/angelmondragon/bagflow-backend/internal/dispatch"
	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/metrics"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bagflow-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type tokenService interface {
	Issue(ctx context.Context, tx *gorm.DB, bagID uuid.UUID, handoffType enums.HandoffType) (string, error)
	Verify(ctx context.Context, tx *gorm.DB, bagID uuid.UUID, handoffType enums.HandoffType, submitted string) error
	ActiveCodes(ctx context.Context, bagID uuid.UUID) (map[enums.HandoffType]string, error)
}

type paymentLedger interface {
	Currency() string
	CautionAmountCents() int64
	PrepareAuthorization(ctx context.Context, tx *gorm.DB, bag *models.Bag) (*models.LedgerEntry, error)
	Authorize(ctx context.Context, bag *models.Bag, entry *models.LedgerEntry) (*models.LedgerEntry, error)
	RetryAuthorization(ctx context.Context, bagID uuid.UUID) (*models.LedgerEntry, error)
	HasConfirmedAuthorization(ctx context.Context, tx *gorm.DB, bagID uuid.UUID) (bool, error)
	PrepareRefund(ctx context.Context, tx *gorm.DB, bag *models.Bag) (*models.LedgerEntry, error)
	SubmitRefund(ctx context.Context, entry *models.LedgerEntry) (*models.LedgerEntry, error)
	CaptureFinal(ctx context.Context, bagID uuid.UUID) (*models.LedgerEntry, error)
	ListForBag(ctx context.Context, bagID uuid.UUID) ([]models.LedgerEntry, error)
}

type dispatcher interface {
	Quote(ctx context.Context, origin, destination types.Address) dispatch.Quote
	Publish(ctx context.Context, tx *gorm.DB, bag *models.Bag, leg dispatch.Leg) (*models.DispatchJob, error)
	Claim(ctx context.Context, tx *gorm.DB, bagID, courierID uuid.UUID) (*dispatch.Claim, error)
	Withdraw(ctx context.Context, tx *gorm.DB, bagID uuid.UUID) ([]models.DispatchJob, error)
	Announce(ctx context.Context, eventType dispatch.EventType, jobs ...models.DispatchJob)
	OpenJobForBag(ctx context.Context, bagID uuid.UUID) (*models.DispatchJob, error)
}

// ServiceParams wires the bag lifecycle manager.
type ServiceParams struct {
	Repo     Repository
	DB       txRunner
	Catalog  catalog.Repository
	Tokens   tokenService
	Ledger   paymentLedger
	Dispatch dispatcher
	Outbox   outbox.Emitter
	Logger   *logger.Logger
	Metrics  *metrics.FulfillmentMetrics
	Clock    func() time.Time
}

// Service owns the bag state machine. Each operation guards actor and state
// up front and applies the transition, its item writes, ledger rows, tokens,
// jobs and outbox event in one transaction holding the bag row lock.
// Gateway calls and courier broadcasts happen after commit.
type Service struct {
	repo     Repository
	db       txRunner
	catalog  catalog.Repository
	tokens   tokenService
	ledger   paymentLedger
	dispatch dispatcher
	outbox   outbox.Emitter
	logg     *logger.Logger
	metrics  *metrics.FulfillmentMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bag repository required")
	case params.DB == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	case params.Catalog == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog repository required")
	case params.Tokens == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "handoff token service required")
	case params.Ledger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment ledger required")
	case params.Dispatch == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dispatch service required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:     params.Repo,
		db:       params.DB,
		catalog:  params.Catalog,
		tokens:   params.Tokens,
		ledger:   params.Ledger,
		dispatch: params.Dispatch,
		outbox:   params.Outbox,
		logg:     logg,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// Create stores a REQUESTED bag with price snapshots and its PENDING caution
// hold, then asks the gateway for the hold. A gateway failure keeps the bag in
// REQUESTED and is returned with the bag id so the client can retry.
func (s *Service) Create(ctx context.Context, actor Actor, input CreateBagInput) (*BagDetail, error) {
	if err := actor.requireRole(enums.ActorRoleClient); err != nil {
		return nil, err
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bag must contain at least one item")
	}
	bagType := input.Type
	if bagType == "" {
		bagType = enums.BagTypeClosed
	}
	if !bagType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid bag type")
	}

	address, err := s.catalog.FindAddress(ctx, input.AddressID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address not found")
		}
		return nil, internal(err, "load address")
	}
	if address.UserID != actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "delivery address belongs to another user")
	}

	variations, err := s.lookupVariations(ctx, s.catalog, input.Items)
	if err != nil {
		return nil, err
	}
	storeID := variations[input.Items[0].VariationID].StoreID
	for _, v := range variations {
		if v.StoreID != storeID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "all items must come from the same store")
		}
	}
	if _, err := s.catalog.FindStore(ctx, storeID); err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "store not found")
		}
		return nil, internal(err, "load store")
	}

	now := s.now()
	bag := &models.Bag{
		ID:              uuid.New(),
		ClientID:        actor.UserID,
		StoreID:         storeID,
		AddressID:       address.ID,
		Type:            bagType,
		Status:          enums.BagStatusRequested,
		PaymentSourceID: input.PaymentSourceID,
		Currency:        s.ledger.Currency(),
		RequestedAt:     now,
	}
	items := make([]models.BagItem, 0, len(input.Items))
	for _, in := range input.Items {
		items = append(items, newItem(bag.ID, variations[in.VariationID], in.Quantity, false))
	}

	var auth *models.LedgerEntry
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, bag); err != nil {
			return internal(err, "create bag")
		}
		if err := repo.CreateItems(ctx, items); err != nil {
			return internal(err, "create bag items")
		}
		var err error
		if auth, err = s.ledger.PrepareAuthorization(ctx, tx, bag); err != nil {
			return internal(err, "record caution hold")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBagCreated,
			AggregateType: enums.AggregateBag,
			AggregateID:   bag.ID,
			Actor:         actorRef(actor),
			Data: payloads.BagCreatedEvent{
				BagID:              bag.ID,
				ClientID:           bag.ClientID,
				StoreID:            bag.StoreID,
				Type:               bag.Type,
				ItemCount:          len(items),
				CautionAmountCents: auth.AmountCents,
				Currency:           auth.Currency,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithBagID(ctx, bag.ID.String())
	s.logg.Info(ctx, "bag requested")

	if _, err := s.ledger.Authorize(ctx, bag, auth); err != nil {
		return nil, withBag(err, bag.ID)
	}
	return s.Get(ctx, actor, bag.ID)
}

// RetryAuthorization places the caution hold again after a decline or an
// unanswered gateway call.
func (s *Service) RetryAuthorization(ctx context.Context, actor Actor, bagID uuid.UUID) (*BagDetail, error) {
	bag, err := s.repo.FindByID(ctx, bagID)
	if err != nil {
		return nil, err
	}
	if err := actor.requireClientOf(bag); err != nil {
		return nil, err
	}
	if err := requireStatus(bag.Status, enums.BagStatusRequested, enums.BagStatusUnderReview); err != nil {
		return nil, err
	}
	if _, err := s.ledger.RetryAuthorization(ctx, bagID); err != nil {
		return nil, withBag(err, bag.ID)
	}
	return s.Get(ctx, actor, bagID)
}

// StartReview records that the store opened the request.
func (s *Service) StartReview(ctx context.Context, actor Actor, bagID uuid.UUID) (*BagDetail, error) {
	err := s.mutate(ctx, bagID, func(tx *gorm.DB, bag *models.Bag) error {
		if err := actor.requireStoreOf(bag); err != nil {
			return err
		}
		if err := requireStatus(bag.Status, enums.BagStatusRequested); err != nil {
			return err
		}
		return s.transition(ctx, tx, bag, enums.BagStatusUnderReview, &actor, "", nil)
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, bagID)
}

// StoreDecision accepts or rejects a request. ACCEPT needs a caution hold
// the gateway acknowledged; REJECT releases it.
func (s *Service) StoreDecision(ctx context.Context, actor Actor, bagID uuid.UUID, input StoreDecisionInput) (*BagDetail, error) {
	if !input.Decision.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be ACCEPT or REJECT")
	}
	var refund *models.LedgerEntry
	err := s.mutate(ctx, bagID, func(tx *gorm.DB, bag *models.Bag) error {
		if err := actor.requireStoreOf(bag); err != nil {
			return err
		}
		if err := requireStatus(bag.Status, enums.BagStatusRequested, enums.BagStatusUnderReview); err != nil {
			return err
		}

		if input.Decision == enums.StoreDecisionReject {
			var err error
			if refund, err = s.ledger.PrepareRefund(ctx, tx, bag); err != nil {
				return internal(err, "record caution release")
			}
			updates := map[string]any{}
			if input.Reason != "" {
				updates["rejection_reason"] = input.Reason
			}
			return s.transition(ctx, tx, bag, enums.BagStatusRejected, &actor, input.Reason, updates)
		}

		held, err := s.ledger.HasConfirmedAuthorization(ctx, tx, bag.ID)
		if err != nil {
			return internal(err, "load caution hold")
		}
		if !held {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "no caution hold confirmed by the gateway; the client must authorize again")
		}
		if err := s.applyInclusions(ctx, tx, bag, input.Items); err != nil {
			return err
		}
		return s.transition(ctx, tx, bag, enums.BagStatusPreparing, &actor, "", nil)
	})
	if err != nil {
		return nil, err
	}
	s.submitRefund(ctx, refund)
	return s.Get(ctx, actor, bagID)
}

// AddExtraItems lets the store suggest more pieces on an OPEN bag.
func (s *Service) AddExtraItems(ctx context.Context, actor Actor, bagID uuid.UUID, extras []ItemInput) (*BagDetail, error) {
	if len(extras) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}
	err := s.mutate(ctx, bagID, func(tx *gorm.DB, bag *models.Bag) error {
		if err := actor.requireStoreOf(bag); err != nil {
			return err
		}
		if bag.Type != enums.BagTypeOpen {
			return pkgerrors.New(pkgerrors.CodeValidation, "extra items are only allowed on open bags")
		}
		if err := requireStatus(bag.Status, enums.BagStatusUnderReview, enums.BagStatusPreparing); err != nil {
			return err
		}
		variations, err := s.lookupVariations(ctx, s.catalog.WithTx(tx), extras)
		if err != nil {
			return err
		}
		items := make([]models.BagItem, 0, len(extras))
		for _, in := range extras {
			v := variations[in.VariationID]
			if v.StoreID != bag.StoreID {
				return pkgerrors.New(pkgerrors.CodeValidation, "extra items must come from the bag's store").
					WithDetails(map[string]any{"variation_id": v.ID})
			}
			items = append(items, newItem(bag.ID, v, in.Quantity, true))
		}
		if err := s.repo.WithTx(tx).CreateItems(ctx, items); err != nil {
			return internal(err, "add extra items")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, bagID)
}

// MarkReady advertises the delivery leg, fixes the shipping fee and issues
// the two outbound handoff codes.
func (s *Service) MarkReady(ctx context.Context, actor Actor, bagID uuid.UUID) (*BagDetail, error) {
	bag, err := s.repo.FindByID(ctx, bagID)
	if err != nil {
		return nil, err
	}
	if err := actor.requireStoreOf(bag); err != nil {
		return nil, err
	}
	if err := requireStatus(bag.Status, enums.BagStatusPreparing); err != nil {
		return nil, err
	}
	origin, destination, err := s.endpoints(ctx, bag)
	if err != nil {
		return nil, err
	}
	quote := s.dispatch.Quote(ctx, origin, destination)

	var job *models.DispatchJob
	err = s.mutate(ctx, bagID, func(tx *gorm.DB, bag *models.Bag) error {
		if err := requireStatus(bag.Status, enums.BagStatusPreparing); err != nil {
			return err
		}
		var err error
		job, err = s.dispatch.Publish(ctx, tx, bag, dispatch.Leg{
			JobType:     enums.DispatchJobTypeDelivery,
			Origin:      origin,
			Destination: destination,
			Quote:       quote,
		})
		if err != nil {
			return err
		}
		if err := s.issue(ctx, tx, bag.ID, enums.HandoffPickupAtStore, enums.HandoffDeliveryToClient); err != nil {
			return err
		}
		return s.transition(ctx, tx, bag, enums.BagStatusAwaitingCourier, &actor, "", map[string]any{
			"shipping_fee_cents": quote.FeeCents,
		})
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Announce(ctx, dispatch.EventJobPublished, *job)
	return s.Get(ctx, actor, bagID)
}

// AcceptJob claims the bag's open courier job for the calling courier. The
// claim itself is a single conditional write; losers get CONCURRENT_CLAIM.
func (s *Service) AcceptJob(ctx context.Context, actor Actor, bagID uuid.UUID) (*BagDetail, error) {
	if err := actor.requireRole(enums.ActorRoleCourier); err != nil {
		return nil, err
	}
	if _, err := s.repo.FindByID(ctx, bagID); err != nil {
		return nil, err
	}

	var claim *dispatch.Claim
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if claim, err = s.dispatch.Claim(ctx, tx, bagID, actor.UserID); err != nil {
			return err
		}
		bag, err := s.repo.WithTx(tx).FindByID(ctx, bagID)
		if err != nil {
			return err
		}
		return s.emitTransition(ctx, tx, bag, claim.From, &actor, "")
	})
	if err != nil {
		return nil, err
	}
	ctx = s.logg.WithCourierID(s.logg.WithBagID(ctx, bagID.String()), actor.UserID.String())
	s.committed(ctx, claim.To)
	s.dispatch.Announce(ctx, dispatch.EventJobClaimed, claim.Job)
	return s.Get(ctx, actor, bagID)
}

// ConfirmPickup is the courier collecting the bag at the store.
func (s *Service) ConfirmPickup(ctx context.Context, actor Actor, bagID uuid.UUID, code string) (*BagDetail, error) {
	return s.handoff(ctx, actor, bagID, code, handoffStep{
		kind:      enums.HandoffPickupAtStore,
		from:      enums.BagStatusCourierEnRouteToStore,
		to:        enums.BagStatusInTransitToClient,
		timestamp: "picked_up_at",
	})
}

// ConfirmDelivery is the courier handing the bag to the client.
func (s *Service) ConfirmDelivery(ctx context.Context, actor Actor, bagID uuid.UUID, code string) (*BagDetail, error) {
	return s.handoff(ctx, actor, bagID, code, handoffStep{
		kind:      enums.HandoffDeliveryToClient,
		from:      enums.BagStatusInTransitToClient,
		to:        enums.BagStatusDelivered,
		timestamp: "delivered_at",
	})
}

// ConfirmReturnPickup is the courier collecting the return at the client.
func (s *Service) ConfirmReturnPickup(ctx context.Context, actor Actor, bagID uuid.UUID, code string) (*BagDetail, error) {
	return s.handoff(ctx, actor, bagID, code, handoffStep{
		kind:      enums.HandoffReturnPickup,
		from:      enums.BagStatusCourierEnRouteToPickup,
		to:        enums.BagStatusInTransitReturn,
		timestamp: "return_picked_up_at",
	})
}

// ConfirmReturnDelivery is the courier handing the return to the store. The
// bag stays IN_TRANSIT_RETURN until the store confirms what it received.
func (s *Service) ConfirmReturnDelivery(ctx context.Context, actor Actor, bagID uuid.UUID, code string) (*BagDetail, error) {
	err := s.mutate(ctx, bagID, func(tx *gorm.DB, bag *models.Bag) error {
		if err := actor.requireCourierOf(bag); err != nil {
			return err
		}
		if err := requireStatus(bag.Status, enums.BagStatusInTransitReturn); err != nil {
			return err
		}
		if bag.ReturnedAt != nil {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "return already handed to the store")
		}
		if err := s.tokens.Verify(ctx, tx, bag.ID, enums.HandoffReturnToStore, code); err != nil {
			return err
		}
		now := s.now()
		ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, bag.ID, bag.Status, map[string]any{
			"returned_at": now,
			"updated_at":  now,
		})
		if err != nil {
			return internal(err, "record return handoff")
		}
		if !ok {
			return stateMoved(bag.Status)
		}
		bag.ReturnedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, bagID)
}

// RecordKeepReturn stores the client's decision for every shipped item,
// issues the return codes and advertises the pickup leg.
func (s *Service) RecordKeepReturn(ctx context.Context, actor Actor, bagID uuid.UUID, input KeepReturnInput) (*BagDetail, error) {
	bag, err := s.repo.FindByID(ctx, bagID)
	if err != nil {
		return nil, err
	}
	if err := actor.requireClientOf(bag); err != nil {
		return nil, err
	}
	if err := requireStatus(bag.Status, enums.BagStatusDelivered); err != nil {
		return nil, err
	}
	store, client, err := s.endpoints(ctx, bag)
	if err != nil {
		return nil, err
	}
	quote := s.dispatch.Quote(ctx, client, store)

	var job *models.DispatchJob
	err = s.mutate(ctx, bagID, func(tx *gorm.DB, bag *models.Bag) error {
		if err := requireStatus(bag.Status, enums.BagStatusDelivered); err != nil {
			return err
		}
		repo := s.repo.WithTx(tx)
		items, err := repo.ListItems(ctx, bag.ID)
		if err != nil {
			return internal(err, "load bag items")
		}
		decisions, err := matchDecisions(items, input.Items)
		if err != nil {
			return err
		}
		for itemID, keep := range decisions {
			status := enums.BagItemStatusReturned
			if keep {
				status = enums.BagItemStatusKept
			}
			if err := repo.UpdateItem(ctx, itemID, map[string]any{"status": status}); err != nil {
				return internal(err, "record item decision")
			}
		}
		if err := s.issue(ctx, tx, bag.ID, enums.HandoffReturnPickup, enums.HandoffReturnToStore); err != nil {
			return err
		}
		if job, err = s.dispatch.Publish(ctx, tx, bag, dispatch.Leg{
			JobType:     enums.DispatchJobTypePickup,
			Origin:      client,
			Destination: store,
			Quote:       quote,
		}); err != nil {
			return err
		}
		return s.transition(ctx, tx, bag, enums.BagStatusAwaitingReturnCourier, &actor, "", map[string]any{
			"courier_id":        nil,
			"return_decided_at": s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Announce(ctx, dispatch.EventJobPublished, *job)
	return s.Get(ctx, actor, bagID)
}

// ConfirmStoreReceivedReturn captures what the client owes and finalizes the
// bag. A gateway failure leaves the bag in IN_TRANSIT_RETURN; calling again
// resumes the same capture.
func (s *Service) ConfirmStoreReceivedReturn(ctx context.Context, actor Actor, bagID uuid.UUID) (*BagDetail, error) {
	bag, err := s.repo.FindByID(ctx, bagID)
	if err != nil {
		return nil, err
	}
	if err := actor.requireStoreOf(bag); err != nil {
		return nil, err
	}
	if err := requireStatus(bag.Status, enums.BagStatusInTransitReturn); err != nil {
		return nil, err
	}

	capture, err := s.ledger.CaptureFinal(ctx, bagID)
	if err != nil {
		return nil, withBag(err, bagID)
	}
	if capture != nil && !captureSettled(capture) {
		return nil, pkgerrors.New(pkgerrors.CodePaymentGateway, "final charge has not been accepted by the payment gateway").
			WithDetails(map[string]any{"bag_id": bagID, "ledger_entry_id": capture.ID})
	}

	var refund *models.LedgerEntry
	err = s.mutate(ctx, bagID, func(tx *gorm.DB, bag *models.Bag) error {
		if err := requireStatus(bag.Status, enums.BagStatusInTransitReturn); err != nil {
			return err
		}
		var err error
		if refund, err = s.ledger.PrepareRefund(ctx, tx, bag); err != nil {
			return internal(err, "record caution release")
		}
		return s.transition(ctx, tx, bag, enums.BagStatusFinalized, &actor, "", map[string]any{
			"completed_at": s.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	s.submitRefund(ctx, refund)
	return s.Get(ctx, actor, bagID)
}

// Cancel ends the bag before any courier holds it and releases the hold.
func (s *Service) Cancel(ctx context.Context, actor Actor, bagID uuid.UUID, input CancelInput) (*BagDetail, error) {
	var (
		refund    *models.LedgerEntry
		withdrawn []models.DispatchJob
	)
	err := s.mutate(ctx, bagID, func(tx *gorm.DB, bag *models.Bag) error {
		if !actor.isOwningClient(bag) && !actor.isOwningStore(bag) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the bag's client or store may cancel it")
		}
		if !cancellable[bag.Status] || bag.CourierID != nil {
			return pkgerrors.New(pkgerrors.CodeInvalidTransition, "bag can no longer be cancelled").
				WithDetails(map[string]any{"status": bag.Status})
		}
		var err error
		if withdrawn, err = s.dispatch.Withdraw(ctx, tx, bag.ID); err != nil {
			return err
		}
		if refund, err = s.ledger.PrepareRefund(ctx, tx, bag); err != nil {
			return internal(err, "record caution release")
		}
		updates := map[string]any{"cancelled_by": actor.Role}
		if input.Reason != "" {
			updates["cancellation_reason"] = input.Reason
		}
		return s.transition(ctx, tx, bag, enums.BagStatusCancelled, &actor, input.Reason, updates)
	})
	if err != nil {
		return nil, err
	}
	s.dispatch.Announce(ctx, dispatch.EventJobWithdrawn, withdrawn...)
	s.submitRefund(ctx, refund)
	return s.Get(ctx, actor, bagID)
}

type handoffStep struct {
	kind      enums.HandoffType
	from      enums.BagStatus
	to        enums.BagStatus
	timestamp string
}

func (s *Service) handoff(ctx context.Context, actor Actor, bagID uuid.UUID, code string, step handoffStep) (*BagDetail, error) {
	err := s.mutate(ctx, bagID, func(tx *gorm.DB, bag *models.Bag) error {
		if err := actor.requireCourierOf(bag); err != nil {
			return err
		}
		if err := requireStatus(bag.Status, step.from); err != nil {
			return err
		}
		if err := s.tokens.Verify(ctx, tx, bag.ID, step.kind, code); err != nil {
			return err
		}
		return s.transition(ctx, tx, bag, step.to, &actor, "", map[string]any{step.timestamp: s.now()})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, actor, bagID)
}

// mutate runs fn in a transaction holding the bag row lock.
func (s *Service) mutate(ctx context.Context, bagID uuid.UUID, fn func(tx *gorm.DB, bag *models.Bag) error) error {
	var (
		from enums.BagStatus
		to   enums.BagStatus
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		bag, err := s.repo.WithTx(tx).LockByID(ctx, bagID)
		if err != nil {
			if pkgerrors.As(err) != nil {
				return err
			}
			return internal(err, "lock bag")
		}
		from = bag.Status
		if err := fn(tx, bag); err != nil {
			return err
		}
		to = bag.Status
		return nil
	})
	if err != nil {
		return err
	}
	if to != from {
		s.committed(s.logg.WithBagID(ctx, bagID.String()), to)
	}
	return nil
}

// transition moves bag to next on tx and records the change in the outbox.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, bag *models.Bag, next enums.BagStatus, actor *Actor, reason string, updates map[string]any) error {
	if !CanTransition(bag.Status, next) {
		return pkgerrors.New(pkgerrors.CodeInvalidTransition, "cannot move bag from "+bag.Status.String()+" to "+next.String())
	}
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = next
	updates["updated_at"] = s.now()

	ok, err := s.repo.WithTx(tx).UpdateStatus(ctx, bag.ID, bag.Status, updates)
	if err != nil {
		return internal(err, "update bag status")
	}
	if !ok {
		return stateMoved(bag.Status)
	}
	from := bag.Status
	bag.Status = next
	return s.emitTransition(ctx, tx, bag, from, actor, reason)
}

func (s *Service) emitTransition(ctx context.Context, tx *gorm.DB, bag *models.Bag, from enums.BagStatus, actor *Actor, reason string) error {
	var role *enums.ActorRole
	var ref *outbox.ActorRef
	if actor != nil {
		r := actor.Role
		role = &r
		ref = actorRef(*actor)
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventBagStatusChanged,
		AggregateType: enums.AggregateBag,
		AggregateID:   bag.ID,
		Actor:         ref,
		Data: payloads.BagStatusChangedEvent{
			BagID:     bag.ID,
			StoreID:   bag.StoreID,
			ClientID:  bag.ClientID,
			From:      from,
			To:        bag.Status,
			ActorRole: role,
			Reason:    reason,
			ChangedAt: s.now(),
		},
	})
}

func (s *Service) committed(ctx context.Context, to enums.BagStatus) {
	s.metrics.IncTransition(to.String())
	s.logg.Info(s.logg.WithField(ctx, "status", to.String()), "bag status changed")
}

func (s *Service) issue(ctx context.Context, tx *gorm.DB, bagID uuid.UUID, kinds ...enums.HandoffType) error {
	for _, kind := range kinds {
		if _, err := s.tokens.Issue(ctx, tx, bagID, kind); err != nil {
			return err
		}
	}
	return nil
}

// submitRefund voids the caution hold after commit. A failure is logged; the
// stale payment job resubmits the refund later.
func (s *Service) submitRefund(ctx context.Context, refund *models.LedgerEntry) {
	if refund == nil {
		return
	}
	if _, err := s.ledger.SubmitRefund(ctx, refund); err != nil {
		s.logg.Error(s.logg.WithFields(ctx, map[string]any{
			"bag_id":          refund.BagID.String(),
			"ledger_entry_id": refund.ID.String(),
		}), "caution release failed", err)
	}
}

func (s *Service) applyInclusions(ctx context.Context, tx *gorm.DB, bag *models.Bag, inclusions []InclusionInput) error {
	repo := s.repo.WithTx(tx)
	items, err := repo.ListItems(ctx, bag.ID)
	if err != nil {
		return internal(err, "load bag items")
	}
	byID := make(map[uuid.UUID]models.BagItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	included := len(items)
	for _, in := range inclusions {
		item, ok := byID[in.ItemID]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, "item does not belong to this bag").
				WithDetails(map[string]any{"item_id": in.ItemID})
		}
		if in.IncludedQty < 0 || in.IncludedQty > item.RequestedQty {
			return pkgerrors.New(pkgerrors.CodeValidation, "included quantity must be between 0 and the requested quantity").
				WithDetails(map[string]any{"item_id": in.ItemID})
		}
		status := enums.BagItemStatusIncluded
		if in.IncludedQty == 0 {
			status = enums.BagItemStatusNotIncluded
			included--
		}
		if err := repo.UpdateItem(ctx, item.ID, map[string]any{
			"included_qty": in.IncludedQty,
			"status":       status,
		}); err != nil {
			return internal(err, "update bag item")
		}
		delete(byID, in.ItemID)
	}
	if included <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item must be included; reject the bag instead")
	}
	return nil
}

func (s *Service) lookupVariations(ctx context.Context, repo catalog.Repository, inputs []ItemInput) (map[uuid.UUID]models.ProductVariation, error) {
	ids := make([]uuid.UUID, 0, len(inputs))
	seen := make(map[uuid.UUID]struct{}, len(inputs))
	for _, in := range inputs {
		if in.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive").
				WithDetails(map[string]any{"variation_id": in.VariationID})
		}
		if _, dup := seen[in.VariationID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "each variation may appear once").
				WithDetails(map[string]any{"variation_id": in.VariationID})
		}
		seen[in.VariationID] = struct{}{}
		ids = append(ids, in.VariationID)
	}

	rows, err := repo.FindVariations(ctx, ids)
	if err != nil {
		return nil, internal(err, "load variations")
	}
	out := make(map[uuid.UUID]models.ProductVariation, len(rows))
	for _, row := range rows {
		out[row.ID] = row
	}
	var missing []uuid.UUID
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown or inactive variations").
			WithDetails(map[string]any{"variation_ids": missing})
	}
	return out, nil
}

// endpoints returns the store and client addresses of a bag.
func (s *Service) endpoints(ctx context.Context, bag *models.Bag) (store, client types.Address, err error) {
	st, err := s.catalog.FindStore(ctx, bag.StoreID)
	if err != nil {
		return types.Address{}, types.Address{}, internal(err, "load store")
	}
	addr, err := s.catalog.FindAddress(ctx, bag.AddressID)
	if err != nil {
		return types.Address{}, types.Address{}, internal(err, "load delivery address")
	}
	return st.Address, addr.Address, nil
}

// matchDecisions checks that decisions name every shipped item exactly once.
func matchDecisions(items []models.BagItem, decisions []ItemDecision) (map[uuid.UUID]bool, error) {
	shipped := make(map[uuid.UUID]bool, len(items))
	for _, item := range items {
		if item.Status == enums.BagItemStatusIncluded {
			shipped[item.ID] = true
		}
	}
	out := make(map[uuid.UUID]bool, len(decisions))
	for _, d := range decisions {
		if !shipped[d.ItemID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision for an item that was not shipped").
				WithDetails(map[string]any{"item_id": d.ItemID})
		}
		if _, dup := out[d.ItemID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item decided more than once").
				WithDetails(map[string]any{"item_id": d.ItemID})
		}
		if d.Keep == nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "comprar is required for every item").
				WithDetails(map[string]any{"item_id": d.ItemID})
		}
		out[d.ItemID] = *d.Keep
	}
	if len(out) != len(shipped) {
		var missing []uuid.UUID
		for id := range shipped {
			if _, ok := out[id]; !ok {
				missing = append(missing, id)
			}
		}
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "every shipped item needs a decision").
			WithDetails(map[string]any{"missing_item_ids": missing})
	}
	return out, nil
}

func newItem(bagID uuid.UUID, v models.ProductVariation, qty int, extra bool) models.BagItem {
	return models.BagItem{
		ID:             uuid.New(),
		BagID:          bagID,
		VariationID:    v.ID,
		RequestedQty:   qty,
		IncludedQty:    qty,
		UnitPriceCents: v.PriceCents,
		Status:         enums.BagItemStatusIncluded,
		IsExtra:        extra,
	}
}

// captureSettled reports whether the gateway took the final charge.
func captureSettled(entry *models.LedgerEntry) bool {
	switch entry.PaymentStatus {
	case enums.PaymentStatusApproved, enums.PaymentStatusProcessing:
		return true
	case enums.PaymentStatusPending:
		return entry.GatewayReference != nil
	}
	return false
}

func actorRef(actor Actor) *outbox.ActorRef {
	return &outbox.ActorRef{
		UserID:  actor.UserID,
		StoreID: actor.StoreID,
		Role:    actor.Role,
	}
}

func withBag(err error, bagID uuid.UUID) error {
	typed := pkgerrors.As(err)
	if typed == nil {
		typed = pkgerrors.Wrap(pkgerrors.CodePaymentGateway, err, "payment gateway failure")
	}
	if typed.Details() != nil {
		return typed
	}
	return typed.WithDetails(map[string]any{"bag_id": bagID})
}

func internal(err error, message string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, message)
}

func stateMoved(from enums.BagStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "bag changed while the request was processed").
		WithDetails(map[string]any{"expected_status": from})
}
