package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

// LedgerEntry records one money movement requested from the payment gateway.
type LedgerEntry struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	BagID            uuid.UUID           `gorm:"column:bag_id;type:uuid;not null"`
	ClientID         uuid.UUID           `gorm:"column:client_id;type:uuid;not null"`
	Kind             enums.LedgerKind    `gorm:"column:kind;not null"`
	AmountCents      int64               `gorm:"column:amount_cents;not null"`
	Currency         string              `gorm:"column:currency;not null"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;not null"`
	GatewayReference *string             `gorm:"column:gateway_reference"`
	ParentReference  *string             `gorm:"column:parent_reference"`
	IdempotencyKey   string              `gorm:"column:idempotency_key;not null"`
	FailureReason    *string             `gorm:"column:failure_reason"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (LedgerEntry) TableName() string { return "ledger_entries" }
