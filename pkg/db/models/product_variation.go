package models

import (
	"github.com/google/uuid"
)

// ProductVariation is the catalog row a bag item points at.
type ProductVariation struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	StoreID    uuid.UUID `gorm:"column:store_id;type:uuid;not null"`
	Name       string    `gorm:"column:name;not null"`
	Size       string    `gorm:"column:size"`
	Color      string    `gorm:"column:color"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Active     bool      `gorm:"column:active;not null"`
}

func (ProductVariation) TableName() string { return "product_variations" }
