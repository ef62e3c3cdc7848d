package models

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/types"
)

// Store is the read-only view of a merchant owned by the stores service.
type Store struct {
	ID      uuid.UUID     `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID uuid.UUID     `gorm:"column:owner_id;type:uuid;not null"`
	Name    string        `gorm:"column:name;not null"`
	Address types.Address `gorm:"column:address;type:address_t;not null"`
}

func (Store) TableName() string { return "stores" }
