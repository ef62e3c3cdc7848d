package dispatch

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	"github.com/angelmondragon/bagflow-backend/pkg/types"
)

// EventType names a message pushed to online couriers.
type EventType string

const (
	EventJobPublished EventType = "job.published"
	EventJobClaimed   EventType = "job.claimed"
	EventJobWithdrawn EventType = "job.withdrawn"
)

// Event is the frame written to courier streams and relayed between instances.
type Event struct {
	Type   EventType `json:"type"`
	Job    JobView   `json:"job"`
	SentAt time.Time `json:"sent_at"`
}

// JobView is the courier-facing shape of a dispatch job.
type JobView struct {
	JobID          uuid.UUID               `json:"job_id"`
	BagID          uuid.UUID               `json:"bag_id"`
	JobType        enums.DispatchJobType   `json:"job_type"`
	Status         enums.DispatchJobStatus `json:"status"`
	Origin         types.Address           `json:"origin"`
	Destination    types.Address           `json:"destination"`
	FeeCents       int64                   `json:"fee_cents"`
	DistanceMeters int64                   `json:"distance_meters"`
	ClaimedBy      *uuid.UUID              `json:"claimed_by,omitempty"`
	PublishedAt    time.Time               `json:"published_at"`
}

// ViewOf converts a persisted job.
func ViewOf(job models.DispatchJob) JobView {
	return JobView{
		JobID:          job.ID,
		BagID:          job.BagID,
		JobType:        job.JobType,
		Status:         job.Status,
		Origin:         job.Origin,
		Destination:    job.Destination,
		FeeCents:       job.FeeCents,
		DistanceMeters: job.DistanceMeters,
		ClaimedBy:      job.ClaimedBy,
		PublishedAt:    job.CreatedAt,
	}
}
