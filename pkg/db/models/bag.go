package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

// Bag is a parcel of garment variations sent to a client for trial.
type Bag struct {
	ID                  uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	ClientID            uuid.UUID        `gorm:"column:client_id;type:uuid;not null"`
	StoreID             uuid.UUID        `gorm:"column:store_id;type:uuid;not null"`
	AddressID           uuid.UUID        `gorm:"column:address_id;type:uuid;not null"`
	CourierID           *uuid.UUID       `gorm:"column:courier_id;type:uuid"`
	Type                enums.BagType    `gorm:"column:type;not null"`
	Status              enums.BagStatus  `gorm:"column:status;not null"`
	PaymentSourceID     string           `gorm:"column:payment_source_id;not null"`
	ShippingFeeCents    int64            `gorm:"column:shipping_fee_cents;not null;default:0"`
	Currency            string           `gorm:"column:currency;not null"`
	RejectionReason     *string          `gorm:"column:rejection_reason"`
	CancellationReason  *string          `gorm:"column:cancellation_reason"`
	CancelledBy         *enums.ActorRole `gorm:"column:cancelled_by"`
	CautionAuthorizedAt *time.Time       `gorm:"column:caution_authorized_at"`
	RequestedAt         time.Time        `gorm:"column:requested_at;not null"`
	PickedUpAt          *time.Time       `gorm:"column:picked_up_at"`
	DeliveredAt         *time.Time       `gorm:"column:delivered_at"`
	ReturnDecidedAt     *time.Time       `gorm:"column:return_decided_at"`
	ReturnPickedUpAt    *time.Time       `gorm:"column:return_picked_up_at"`
	ReturnedAt          *time.Time       `gorm:"column:returned_at"`
	CompletedAt         *time.Time       `gorm:"column:completed_at"`
	CreatedAt           time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Bag) TableName() string { return "bags" }

// BagItem is one garment variation inside a bag. UnitPriceCents is the
// catalog price at request time and is never refreshed.
type BagItem struct {
	ID             uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BagID          uuid.UUID           `gorm:"column:bag_id;type:uuid;not null"`
	VariationID    uuid.UUID           `gorm:"column:variation_id;type:uuid;not null"`
	RequestedQty   int                 `gorm:"column:requested_qty;not null"`
	IncludedQty    int                 `gorm:"column:included_qty;not null"`
	UnitPriceCents int64               `gorm:"column:unit_price_cents;not null"`
	Status         enums.BagItemStatus `gorm:"column:status;not null"`
	IsExtra        bool                `gorm:"column:is_extra;not null;default:false"`
	CreatedAt      time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (BagItem) TableName() string { return "bag_items" }

// LineTotalCents is the price of the quantity the store actually shipped.
func (i BagItem) LineTotalCents() int64 {
	return i.UnitPriceCents * int64(i.IncludedQty)
}
