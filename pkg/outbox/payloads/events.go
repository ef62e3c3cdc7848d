package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

// BagCreatedEvent announces a new bag request and its caution hold.
type BagCreatedEvent struct {
	BagID              uuid.UUID     `json:"bag_id"`
	ClientID           uuid.UUID     `json:"client_id"`
	StoreID            uuid.UUID     `json:"store_id"`
	Type               enums.BagType `json:"type"`
	ItemCount          int           `json:"item_count"`
	CautionAmountCents int64         `json:"caution_amount_cents"`
	Currency           string        `json:"currency"`
}

// BagStatusChangedEvent is emitted on every lifecycle transition.
type BagStatusChangedEvent struct {
	BagID     uuid.UUID        `json:"bag_id"`
	StoreID   uuid.UUID        `json:"store_id"`
	ClientID  uuid.UUID        `json:"client_id"`
	From      enums.BagStatus  `json:"from"`
	To        enums.BagStatus  `json:"to"`
	ActorRole *enums.ActorRole `json:"actor_role,omitempty"`
	Reason    string           `json:"reason,omitempty"`
	ChangedAt time.Time        `json:"changed_at"`
}

// LedgerEntryEvent describes a ledger row when it is recorded or its status moves.
type LedgerEntryEvent struct {
	EntryID          uuid.UUID           `json:"entry_id"`
	BagID            uuid.UUID           `json:"bag_id"`
	Kind             enums.LedgerKind    `json:"kind"`
	AmountCents      int64               `json:"amount_cents"`
	Currency         string              `json:"currency"`
	PaymentStatus    enums.PaymentStatus `json:"payment_status"`
	GatewayReference *string             `json:"gateway_reference,omitempty"`
}

// DispatchJobEvent describes a courier job when it is published or claimed.
type DispatchJobEvent struct {
	JobID     uuid.UUID             `json:"job_id"`
	BagID     uuid.UUID             `json:"bag_id"`
	JobType   enums.DispatchJobType `json:"job_type"`
	FeeCents  int64                 `json:"fee_cents"`
	CourierID *uuid.UUID            `json:"courier_id,omitempty"`
}
