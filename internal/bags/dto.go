package bags

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/internal/dispatch"
	"github.com/angelmondragon/bagflow-backend/internal/ledger"
	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

// ItemInput asks for a quantity of one variation.
type ItemInput struct {
	VariationID uuid.UUID `json:"variation_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"required,min=1,max=10"`
}

// CreateBagInput is the client's bag request.
type CreateBagInput struct {
	AddressID       uuid.UUID     `json:"address_id" validate:"required"`
	Type            enums.BagType `json:"type" validate:"omitempty,oneof=CLOSED OPEN"`
	PaymentSourceID string        `json:"payment_source_id" validate:"required,max=255"`
	Items           []ItemInput   `json:"items" validate:"required,min=1,max=30,dive"`
}

// InclusionInput is the quantity of a requested item the store ships.
type InclusionInput struct {
	ItemID      uuid.UUID `json:"item_id" validate:"required"`
	IncludedQty int       `json:"included_qty" validate:"min=0"`
}

// StoreDecisionInput is the store's answer to a request.
type StoreDecisionInput struct {
	Decision enums.StoreDecision `json:"action" validate:"required,oneof=ACCEPT REJECT"`
	Reason   string              `json:"motivo" validate:"max=500"`
	Items    []InclusionInput    `json:"items" validate:"omitempty,dive"`
}

// ItemDecision is the client's keep/return answer for one item. Keep is a
// pointer so an omitted answer is rejected instead of read as a return.
type ItemDecision struct {
	ItemID uuid.UUID `json:"item_id" validate:"required"`
	Keep   *bool     `json:"comprar" validate:"required"`
}

// KeepReturnInput covers every shipped item of the bag.
type KeepReturnInput struct {
	Items []ItemDecision `json:"items" validate:"required,min=1,dive"`
}

// CancelInput carries the reason shown to the other party.
type CancelInput struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ListFilter narrows List.
type ListFilter struct {
	Status *enums.BagStatus
	Limit  int
	Cursor string
}

// ItemView is one item of a bag as returned by the API.
type ItemView struct {
	ID             uuid.UUID           `json:"id"`
	VariationID    uuid.UUID           `json:"variation_id"`
	RequestedQty   int                 `json:"requested_qty"`
	IncludedQty    int                 `json:"included_qty"`
	UnitPriceCents int64               `json:"unit_price_cents"`
	Status         enums.BagItemStatus `json:"status"`
	IsExtra        bool                `json:"is_extra"`
}

// LedgerView is one money movement of a bag.
type LedgerView struct {
	ID               uuid.UUID           `json:"id"`
	Kind             enums.LedgerKind    `json:"kind"`
	AmountCents      int64               `json:"amount_cents"`
	Currency         string              `json:"currency"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
	GatewayReference *string             `json:"gateway_reference,omitempty"`
	CreatedAt        time.Time           `json:"created_at"`
}

// BagSummary is the list shape of a bag.
type BagSummary struct {
	ID               uuid.UUID       `json:"id"`
	ClientID         uuid.UUID       `json:"client_id"`
	StoreID          uuid.UUID       `json:"store_id"`
	CourierID        *uuid.UUID      `json:"courier_id,omitempty"`
	Type             enums.BagType   `json:"type"`
	Status           enums.BagStatus `json:"status"`
	ShippingFeeCents int64           `json:"shipping_fee_cents"`
	Currency         string          `json:"currency"`
	RequestedAt      time.Time       `json:"requested_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// BagDetail is everything an actor may see about one bag. HandoffCodes holds
// only the codes the caller has to present to the courier.
type BagDetail struct {
	BagSummary
	AddressID           uuid.UUID                    `json:"address_id"`
	RejectionReason     *string                      `json:"rejection_reason,omitempty"`
	CancellationReason  *string                      `json:"cancellation_reason,omitempty"`
	CautionAuthorizedAt *time.Time                   `json:"caution_authorized_at,omitempty"`
	PickedUpAt          *time.Time                   `json:"picked_up_at,omitempty"`
	DeliveredAt         *time.Time                   `json:"delivered_at,omitempty"`
	ReturnDecidedAt     *time.Time                   `json:"return_decided_at,omitempty"`
	ReturnPickedUpAt    *time.Time                   `json:"return_picked_up_at,omitempty"`
	ReturnedAt          *time.Time                   `json:"returned_at,omitempty"`
	Items               []ItemView                   `json:"items"`
	Totals              ledger.Totals                `json:"totals"`
	Ledger              []LedgerView                 `json:"ledger"`
	HandoffCodes        map[enums.HandoffType]string `json:"handoff_codes,omitempty"`
	OpenJob             *dispatch.JobView            `json:"open_job,omitempty"`
}

// BagList is one page of bags.
type BagList struct {
	Bags       []BagSummary `json:"bags"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

func summaryOf(bag models.Bag) BagSummary {
	return BagSummary{
		ID:               bag.ID,
		ClientID:         bag.ClientID,
		StoreID:          bag.StoreID,
		CourierID:        bag.CourierID,
		Type:             bag.Type,
		Status:           bag.Status,
		ShippingFeeCents: bag.ShippingFeeCents,
		Currency:         bag.Currency,
		RequestedAt:      bag.RequestedAt,
		CompletedAt:      bag.CompletedAt,
	}
}

func itemViews(items []models.BagItem) []ItemView {
	out := make([]ItemView, 0, len(items))
	for _, item := range items {
		out = append(out, ItemView{
			ID:             item.ID,
			VariationID:    item.VariationID,
			RequestedQty:   item.RequestedQty,
			IncludedQty:    item.IncludedQty,
			UnitPriceCents: item.UnitPriceCents,
			Status:         item.Status,
			IsExtra:        item.IsExtra,
		})
	}
	return out
}

func ledgerViews(entries []models.LedgerEntry) []LedgerView {
	out := make([]LedgerView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, LedgerView{
			ID:               entry.ID,
			Kind:             entry.Kind,
			AmountCents:      entry.AmountCents,
			Currency:         entry.Currency,
			PaymentStatus:    entry.PaymentStatus,
			GatewayReference: entry.GatewayReference,
			CreatedAt:        entry.CreatedAt,
		})
	}
	return out
}
