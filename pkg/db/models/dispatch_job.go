package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	"github.com/angelmondragon/bagflow-backend/pkg/types"
)

// DispatchJob is a courier leg advertised while its bag waits for a courier.
type DispatchJob struct {
	ID              uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	BagID           uuid.UUID               `gorm:"column:bag_id;type:uuid;not null"`
	JobType         enums.DispatchJobType   `gorm:"column:job_type;not null"`
	Status          enums.DispatchJobStatus `gorm:"column:status;not null"`
	Origin          types.Address           `gorm:"column:origin;type:address_t;not null"`
	Destination     types.Address           `gorm:"column:destination;type:address_t;not null"`
	FeeCents        int64                   `gorm:"column:fee_cents;not null"`
	DistanceMeters  int64                   `gorm:"column:distance_meters;not null"`
	ClaimedBy       *uuid.UUID              `gorm:"column:claimed_by;type:uuid"`
	ClaimedAt       *time.Time              `gorm:"column:claimed_at"`
	LastBroadcastAt time.Time               `gorm:"column:last_broadcast_at;not null"`
	CreatedAt       time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

func (DispatchJob) TableName() string { return "dispatch_jobs" }
