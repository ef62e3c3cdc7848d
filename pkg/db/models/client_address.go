package models

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/types"
)

// ClientAddress is a delivery address registered by a client.
type ClientAddress struct {
	ID      uuid.UUID     `gorm:"column:id;type:uuid;primaryKey"`
	UserID  uuid.UUID     `gorm:"column:user_id;type:uuid;not null"`
	Address types.Address `gorm:"column:address;type:address_t;not null"`
}

func (ClientAddress) TableName() string { return "addresses" }
