package dispatch

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
)

// Repository persists courier jobs and performs the claim write.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, job *models.DispatchJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.DispatchJob, error)
	FindOpenForBag(ctx context.Context, bagID uuid.UUID) (*models.DispatchJob, error)
	ListOpen(ctx context.Context) ([]models.DispatchJob, error)
	ListOpenBroadcastBefore(ctx context.Context, before time.Time, limit int) ([]models.DispatchJob, error)
	TouchBroadcast(ctx context.Context, ids []uuid.UUID, at time.Time) error
	WithdrawOpenForBag(ctx context.Context, bagID uuid.UUID) ([]models.DispatchJob, error)
	ClaimBag(ctx context.Context, bagID, courierID uuid.UUID, from, to enums.BagStatus) (bool, error)
	MarkClaimed(ctx context.Context, jobID, courierID uuid.UUID, at time.Time) error
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

func (r *repository) Create(ctx context.Context, job *models.DispatchJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DispatchJob, error) {
	var job models.DispatchJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "dispatch job not found")
		}
		return nil, err
	}
	return &job, nil
}

func (r *repository) FindOpenForBag(ctx context.Context, bagID uuid.UUID) (*models.DispatchJob, error) {
	var job models.DispatchJob
	err := r.db.WithContext(ctx).
		Where("bag_id = ? AND status = ?", bagID, enums.DispatchJobStatusOpen).
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *repository) ListOpen(ctx context.Context) ([]models.DispatchJob, error) {
	var jobs []models.DispatchJob
	if err := r.db.WithContext(ctx).
		Where("status = ?", enums.DispatchJobStatusOpen).
		Order("created_at ASC").
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repository) ListOpenBroadcastBefore(ctx context.Context, before time.Time, limit int) ([]models.DispatchJob, error) {
	var jobs []models.DispatchJob
	if err := r.db.WithContext(ctx).
		Where("status = ? AND last_broadcast_at < ?", enums.DispatchJobStatusOpen, before).
		Order("last_broadcast_at ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *repository) TouchBroadcast(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Where("id IN ? AND status = ?", ids, enums.DispatchJobStatusOpen).
		UpdateColumn("last_broadcast_at", at).Error
}

// WithdrawOpenForBag closes the open job of the bag, if any, and returns it.
func (r *repository) WithdrawOpenForBag(ctx context.Context, bagID uuid.UUID) ([]models.DispatchJob, error) {
	var jobs []models.DispatchJob
	if err := r.db.WithContext(ctx).
		Where("bag_id = ? AND status = ?", bagID, enums.DispatchJobStatusOpen).
		Find(&jobs).Error; err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}
	if err := r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Where("bag_id = ? AND status = ?", bagID, enums.DispatchJobStatusOpen).
		Update("status", enums.DispatchJobStatusWithdrawn).Error; err != nil {
		return nil, err
	}
	for i := range jobs {
		jobs[i].Status = enums.DispatchJobStatusWithdrawn
	}
	return jobs, nil
}

// ClaimBag attaches courierID to the bag in a single conditional write. It
// reports false when another courier got there first or the bag moved on.
func (r *repository) ClaimBag(ctx context.Context, bagID, courierID uuid.UUID, from, to enums.BagStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Bag{}).
		Where("id = ? AND status = ? AND courier_id IS NULL", bagID, from).
		Updates(map[string]any{
			"courier_id": courierID,
			"status":     to,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) MarkClaimed(ctx context.Context, jobID, courierID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DispatchJob{}).
		Where("id = ? AND status = ?", jobID, enums.DispatchJobStatusOpen).
		Updates(map[string]any{
			"status":     enums.DispatchJobStatusClaimed,
			"claimed_by": courierID,
			"claimed_at": at,
		}).Error
}
