package bags

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/internal/dispatch"
	"github.com/angelmondragon/bagflow-backend/internal/ledger"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/pagination"
)

// presentedBy lists the handoff codes each role shows to the courier.
var presentedBy = map[enums.ActorRole][]enums.HandoffType{
	enums.ActorRoleStore:  {enums.HandoffPickupAtStore, enums.HandoffReturnToStore},
	enums.ActorRoleClient: {enums.HandoffDeliveryToClient, enums.HandoffReturnPickup},
}

// Get returns the bag as the actor is allowed to see it. Couriers other than
// the assigned one only see bags with an open job, without the ledger.
func (s *Service) Get(ctx context.Context, actor Actor, bagID uuid.UUID) (*BagDetail, error) {
	bag, err := s.repo.FindByID(ctx, bagID)
	if err != nil {
		return nil, internal(err, "load bag")
	}

	job, err := s.dispatch.OpenJobForBag(ctx, bagID)
	if err != nil {
		return nil, internal(err, "load dispatch job")
	}
	prospect := actor.Role == enums.ActorRoleCourier && job != nil && !actor.isAssignedCourier(bag)
	if !actor.isOwningClient(bag) && !actor.isOwningStore(bag) && !actor.isAssignedCourier(bag) && !prospect {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "bag is not visible to this user")
	}

	items, err := s.repo.ListItems(ctx, bagID)
	if err != nil {
		return nil, internal(err, "load bag items")
	}
	detail := &BagDetail{
		BagSummary:          summaryOf(*bag),
		AddressID:           bag.AddressID,
		RejectionReason:     bag.RejectionReason,
		CancellationReason:  bag.CancellationReason,
		CautionAuthorizedAt: bag.CautionAuthorizedAt,
		PickedUpAt:          bag.PickedUpAt,
		DeliveredAt:         bag.DeliveredAt,
		ReturnDecidedAt:     bag.ReturnDecidedAt,
		ReturnPickedUpAt:    bag.ReturnPickedUpAt,
		ReturnedAt:          bag.ReturnedAt,
		Items:               itemViews(items),
		Totals:              ledger.ComputeTotals(items, bag.ShippingFeeCents),
		Ledger:              []LedgerView{},
	}
	if job != nil {
		view := dispatch.ViewOf(*job)
		detail.OpenJob = &view
	}
	if actor.Role == enums.ActorRoleCourier {
		return detail, nil
	}

	entries, err := s.ledger.ListForBag(ctx, bagID)
	if err != nil {
		return nil, internal(err, "load ledger")
	}
	detail.Ledger = ledgerViews(entries)

	if kinds := presentedBy[actor.Role]; len(kinds) > 0 && !bag.Status.IsTerminal() {
		codes, err := s.tokens.ActiveCodes(ctx, bagID)
		if err != nil {
			return nil, internal(err, "load handoff codes")
		}
		for _, kind := range kinds {
			if code, ok := codes[kind]; ok {
				if detail.HandoffCodes == nil {
					detail.HandoffCodes = map[enums.HandoffType]string{}
				}
				detail.HandoffCodes[kind] = code
			}
		}
	}
	return detail, nil
}

// List pages through the bags of the calling client, store or courier,
// newest request first.
func (s *Service) List(ctx context.Context, actor Actor, filter ListFilter) (*BagList, error) {
	cursor, err := pagination.Decode(filter.Cursor)
	if err != nil {
		return nil, err
	}
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown bag status")
	}

	query := ListQuery{Status: filter.Status, Cursor: cursor, Limit: filter.Limit}
	switch actor.Role {
	case enums.ActorRoleClient:
		query.ClientID = &actor.UserID
	case enums.ActorRoleStore:
		if actor.StoreID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "store context required")
		}
		query.StoreID = actor.StoreID
	case enums.ActorRoleCourier:
		query.CourierID = &actor.UserID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "unknown role")
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, internal(err, "list bags")
	}
	limit := pagination.NormalizeLimit(filter.Limit)
	out := &BagList{Bags: make([]BagSummary, 0, limit)}
	if len(rows) > limit {
		last := rows[limit-1]
		out.NextCursor = pagination.Encode(pagination.Cursor{At: last.RequestedAt, ID: last.ID})
		rows = rows[:limit]
	}
	for _, row := range rows {
		out.Bags = append(out.Bags, summaryOf(row))
	}
	return out, nil
}
