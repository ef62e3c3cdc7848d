package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

// Repository manages persistence for ledger entries.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindByGatewayReference(ctx context.Context, reference string) (*models.LedgerEntry, error)
	FindLive(ctx context.Context, bagID uuid.UUID, kind enums.LedgerKind) (*models.LedgerEntry, error)
	Latest(ctx context.Context, bagID uuid.UUID, kind enums.LedgerKind) (*models.LedgerEntry, error)
	ListByBag(ctx context.Context, bagID uuid.UUID) ([]models.LedgerEntry, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.LedgerEntry, error)
	Update(ctx context.Context, id uuid.UUID, updates map[string]any) error
	LockBag(ctx context.Context, bagID uuid.UUID) (*models.Bag, error)
	MarkCautionAuthorized(ctx context.Context, bagID uuid.UUID, at time.Time) error
	ListItems(ctx context.Context, bagID uuid.UUID) ([]models.BagItem, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts entry. A second live AUTHORIZATION or CAPTURE for the same
// bag trips a partial unique index and surfaces as a conflict.
func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	if db.IsUniqueViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a live "+string(entry.Kind)+" entry already exists for this bag")
	}
	return err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ledger entry not found")
		}
		return nil, err
	}
	return &entry, nil
}

func (r *repository) FindByGatewayReference(ctx context.Context, reference string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).Where("gateway_reference = ?", reference).First(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no ledger entry for payment")
		}
		return nil, err
	}
	return &entry, nil
}

// FindLive returns the non-failed entry of kind for the bag, or nil.
func (r *repository) FindLive(ctx context.Context, bagID uuid.UUID, kind enums.LedgerKind) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("bag_id = ? AND kind = ? AND payment_status <> ?", bagID, kind, enums.PaymentStatusFailed).
		Order("created_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// Latest returns the most recent entry of kind for the bag, or nil.
func (r *repository) Latest(ctx context.Context, bagID uuid.UUID, kind enums.LedgerKind) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	err := r.db.WithContext(ctx).
		Where("bag_id = ? AND kind = ?", bagID, kind).
		Order("created_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByBag(ctx context.Context, bagID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("bag_id = ?", bagID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ListStale returns open entries that have not moved since before: payments
// already known to the gateway and refunds whose void never went through.
func (r *repository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("payment_status IN ? AND (gateway_reference IS NOT NULL OR kind = ?) AND updated_at < ?",
			[]enums.PaymentStatus{enums.PaymentStatusPending, enums.PaymentStatusProcessing},
			enums.LedgerKindRefund, before).
		Order("updated_at ASC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// LockBag takes the per-bag row lock every money movement serializes on.
func (r *repository) LockBag(ctx context.Context, bagID uuid.UUID) (*models.Bag, error) {
	var bag models.Bag
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", bagID).
		First(&bag).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bag not found")
		}
		return nil, err
	}
	return &bag, nil
}

func (r *repository) MarkCautionAuthorized(ctx context.Context, bagID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Bag{}).
		Where("id = ? AND caution_authorized_at IS NULL", bagID).
		Update("caution_authorized_at", at).Error
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
