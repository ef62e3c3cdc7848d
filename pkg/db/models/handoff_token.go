package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
)

// HandoffToken is the single-use code for one physical exchange of a bag.
type HandoffToken struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	BagID       uuid.UUID         `gorm:"column:bag_id;type:uuid;not null"`
	HandoffType enums.HandoffType `gorm:"column:handoff_type;not null"`
	Code        string            `gorm:"column:code;not null"`
	ExpiresAt   time.Time         `gorm:"column:expires_at;not null"`
	ConsumedAt  *time.Time        `gorm:"column:consumed_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (HandoffToken) TableName() string { return "handoff_tokens" }
