package bags

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/pagination"
)

// Repository persists bags and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, bag *models.Bag) error
	CreateItems(ctx context.Context, items []models.BagItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Bag, error)
	LockByID(ctx context.Context, id uuid.UUID) (*models.Bag, error)
	ListItems(ctx context.Context, bagID uuid.UUID) ([]models.BagItem, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from enums.BagStatus, updates map[string]any) (bool, error)
	UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error
	List(ctx context.Context, query ListQuery) ([]models.Bag, error)
}

// ListQuery scopes List to one actor. Exactly one of the owner ids is set.
type ListQuery struct {
	ClientID  *uuid.UUID
	StoreID   *uuid.UUID
	CourierID *uuid.UUID
	Status    *enums.BagStatus
	Cursor    *pagination.Cursor
	Limit     int
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

func (r *repository) Create(ctx context.Context, bag *models.Bag) error {
	return r.db.WithContext(ctx).Create(bag).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.BagItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Bag, error) {
	return r.find(r.db.WithContext(ctx), id)
}

// LockByID loads the bag holding its row lock until the transaction ends.
func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Bag, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), id)
}

func (r *repository) find(q *gorm.DB, id uuid.UUID) (*models.Bag, error) {
	var bag models.Bag
	if err := q.Where("id = ?", id).First(&bag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bag not found")
		}
		return nil, err
	}
	return &bag, nil
}

func (r *repository) ListItems(ctx context.Context, bagID uuid.UUID) ([]models.BagItem, error) {
	var items []models.BagItem
	if err := r.db.WithContext(ctx).
		Where("bag_id = ?", bagID).
		Order("created_at ASC, id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateStatus applies updates only while the bag is still in from. It
// reports false when another writer moved the bag first.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from enums.BagStatus, updates map[string]any) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Bag{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpdateItem(ctx context.Context, itemID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.BagItem{}).
		Where("id = ?", itemID).
		Updates(updates).Error
}

// List returns bags newest first, one row past the limit when another page
// exists.
func (r *repository) List(ctx context.Context, query ListQuery) ([]models.Bag, error) {
	q := r.db.WithContext(ctx).Model(&models.Bag{})
	switch {
	case query.ClientID != nil:
		q = q.Where("client_id = ?", *query.ClientID)
	case query.StoreID != nil:
		q = q.Where("store_id = ?", *query.StoreID)
	case query.CourierID != nil:
		q = q.Where("courier_id = ?", *query.CourierID)
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "bag list requires an owner")
	}
	if query.Status != nil {
		q = q.Where("status = ?", *query.Status)
	}
	if query.Cursor != nil {
		q = q.Where("(requested_at < ?) OR (requested_at = ? AND id < ?)",
			query.Cursor.At, query.Cursor.At, query.Cursor.ID)
	}

	var bags []models.Bag
	if err := q.Order("requested_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(query.Limit)).
		Find(&bags).Error; err != nil {
		return nil, err
	}
	return bags, nil
}
