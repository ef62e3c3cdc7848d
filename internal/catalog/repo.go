// Package catalog reads the collaborator tables a bag depends on. Catalog,
// store and address CRUD live in other services; bags only look rows up.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

// Repository exposes read-only lookups.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindVariations(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariation, error)
	FindStore(ctx context.Context, id uuid.UUID) (*models.Store, error)
	FindAddress(ctx context.Context, id uuid.UUID) (*models.ClientAddress, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindVariations returns the active variations among ids. Missing or inactive
// ids are simply absent from the result.
func (r *repository) FindVariations(ctx context.Context, ids []uuid.UUID) ([]models.ProductVariation, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.ProductVariation
	if err := r.db.WithContext(ctx).
		Where("id IN ? AND active = ?", ids, true).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) FindStore(ctx context.Context, id uuid.UUID) (*models.Store, error) {
	var store models.Store
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&store).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "store not found")
		}
		return nil, err
	}
	return &store, nil
}

func (r *repository) FindAddress(ctx context.Context, id uuid.UUID) (*models.ClientAddress, error) {
	var addr models.ClientAddress
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&addr).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "address not found")
		}
		return nil, err
	}
	return &addr, nil
}
