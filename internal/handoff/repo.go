package handoff

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/pkg/db"
	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

// Repository persists handoff codes.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, token *models.HandoffToken) error
	DeleteActive(ctx context.Context, bagID uuid.UUID, handoffType enums.HandoffType) error
	FindActive(ctx context.Context, bagID uuid.UUID, handoffType enums.HandoffType) (*models.HandoffToken, error)
	ListActive(ctx context.Context, bagID uuid.UUID) ([]models.HandoffToken, error)
	Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
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

func (r *repository) Create(ctx context.Context, token *models.HandoffToken) error {
	err := r.db.WithContext(ctx).Create(token).Error
	if db.IsUniqueViolation(err, "handoff_tokens_one_active") {
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "a live handoff code already exists")
	}
	return err
}

func (r *repository) DeleteActive(ctx context.Context, bagID uuid.UUID, handoffType enums.HandoffType) error {
	return r.db.WithContext(ctx).
		Where("bag_id = ? AND handoff_type = ? AND consumed_at IS NULL", bagID, handoffType).
		Delete(&models.HandoffToken{}).Error
}

// FindActive returns the unconsumed code for the key, or nil when none exists.
func (r *repository) FindActive(ctx context.Context, bagID uuid.UUID, handoffType enums.HandoffType) (*models.HandoffToken, error) {
	var token models.HandoffToken
	err := r.db.WithContext(ctx).
		Where("bag_id = ? AND handoff_type = ? AND consumed_at IS NULL", bagID, handoffType).
		First(&token).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repository) ListActive(ctx context.Context, bagID uuid.UUID) ([]models.HandoffToken, error) {
	var tokens []models.HandoffToken
	if err := r.db.WithContext(ctx).
		Where("bag_id = ? AND consumed_at IS NULL", bagID).
		Order("created_at ASC").
		Find(&tokens).Error; err != nil {
		return nil, err
	}
	return tokens, nil
}

// Consume marks the code used. It reports false when another request
// consumed it first.
func (r *repository) Consume(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.HandoffToken{}).
		Where("id = ? AND consumed_at IS NULL", id).
		Update("consumed_at", at)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// PurgeBefore deletes codes that were consumed, or expired, before cutoff.
func (r *repository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("(consumed_at IS NOT NULL AND consumed_at < ?) OR expires_at < ?", cutoff, cutoff).
		Delete(&models.HandoffToken{})
	return res.RowsAffected, res.Error
}
