package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/pkg/db/models"
	"github.com/angelmondragon/bagflow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bagflow-backend/pkg/errors"
	"github.com/angelmondragon/bagflow-backend/pkg/logger"
	"github.com/angelmondragon/bagflow-backend/pkg/metrics"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox"
	"github.com/angelmondragon/bagflow-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/bagflow-backend/pkg/types"
)

// Broadcaster pushes an event to online couriers.
type Broadcaster interface {
	Broadcast(ctx context.Context, event Event) error
}

// ServiceParams wires the dispatch broker.
type ServiceParams struct {
	Repo        Repository
	Fees        *FeeCalculator
	Broadcaster Broadcaster
	Outbox      outbox.Emitter
	Logger      *logger.Logger
	Metrics     *metrics.FulfillmentMetrics
	Clock       func() time.Time
}

// Service advertises courier jobs and arbitrates claims. Writes run on the
// caller's transaction; broadcasts go out through Announce once it commits.
type Service struct {
	repo        Repository
	fees        *FeeCalculator
	broadcaster Broadcaster
	outbox      outbox.Emitter
	logg        *logger.Logger
	metrics     *metrics.FulfillmentMetrics
	now         func() time.Time
}

// Leg is a courier job to advertise.
type Leg struct {
	JobType     enums.DispatchJobType
	Origin      types.Address
	Destination types.Address
	Quote       Quote
}

// Claim is the outcome of a won claim.
type Claim struct {
	Job  models.DispatchJob
	From enums.BagStatus
	To   enums.BagStatus
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dispatch repository required")
	}
	if params.Fees == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "fee calculator required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:        params.Repo,
		fees:        params.Fees,
		broadcaster: params.Broadcaster,
		outbox:      params.Outbox,
		logg:        logg,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

// Quote prices a leg. Call it before opening the transaction.
func (s *Service) Quote(ctx context.Context, origin, destination types.Address) Quote {
	return s.fees.Quote(ctx, origin, destination)
}

// Publish records an OPEN job for the bag on tx, replacing any open one.
func (s *Service) Publish(ctx context.Context, tx *gorm.DB, bag *models.Bag, leg Leg) (*models.DispatchJob, error) {
	if !leg.JobType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid dispatch job type")
	}
	repo := s.repo.WithTx(tx)
	if _, err := repo.WithdrawOpenForBag(ctx, bag.ID); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "withdraw previous job")
	}
	now := s.now()
	job := &models.DispatchJob{
		ID:              uuid.New(),
		BagID:           bag.ID,
		JobType:         leg.JobType,
		Status:          enums.DispatchJobStatusOpen,
		Origin:          leg.Origin,
		Destination:     leg.Destination,
		FeeCents:        leg.Quote.FeeCents,
		DistanceMeters:  leg.Quote.DistanceMeters,
		LastBroadcastAt: now,
		CreatedAt:       now,
	}
	if err := repo.Create(ctx, job); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create dispatch job")
	}
	if err := s.emit(ctx, tx, enums.EventDispatchJobPublished, job); err != nil {
		return nil, err
	}
	return job, nil
}

// Claim assigns courierID to the bag's open job. Of any number of concurrent
// attempts exactly one wins; the others get CONCURRENT_CLAIM.
func (s *Service) Claim(ctx context.Context, tx *gorm.DB, bagID, courierID uuid.UUID) (*Claim, error) {
	outcome := "won"
	defer func() { s.metrics.IncClaim(outcome) }()

	repo := s.repo.WithTx(tx)
	job, err := repo.FindOpenForBag(ctx, bagID)
	if err != nil {
		outcome = "error"
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load dispatch job")
	}
	if job == nil {
		outcome = "lost"
		return nil, pkgerrors.New(pkgerrors.CodeConcurrentClaim, "job is no longer available")
	}

	from, to := claimEdge(job.JobType)
	won, err := repo.ClaimBag(ctx, bagID, courierID, from, to)
	if err != nil {
		outcome = "error"
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "claim bag")
	}
	if !won {
		outcome = "lost"
		return nil, pkgerrors.New(pkgerrors.CodeConcurrentClaim, "job was claimed by another courier").
			WithDetails(map[string]any{"job_id": job.ID})
	}

	now := s.now()
	if err := repo.MarkClaimed(ctx, job.ID, courierID, now); err != nil {
		outcome = "error"
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark job claimed")
	}
	job.Status = enums.DispatchJobStatusClaimed
	job.ClaimedBy = &courierID
	job.ClaimedAt = &now
	if err := s.emit(ctx, tx, enums.EventDispatchJobClaimed, job); err != nil {
		outcome = "error"
		return nil, err
	}
	return &Claim{Job: *job, From: from, To: to}, nil
}

// Withdraw closes the open job of a bag on tx.
func (s *Service) Withdraw(ctx context.Context, tx *gorm.DB, bagID uuid.UUID) ([]models.DispatchJob, error) {
	jobs, err := s.repo.WithTx(tx).WithdrawOpenForBag(ctx, bagID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "withdraw dispatch job")
	}
	return jobs, nil
}

// Announce broadcasts committed job changes. Delivery is best effort: a
// courier that misses it sees the job in its next snapshot or rebroadcast.
func (s *Service) Announce(ctx context.Context, eventType EventType, jobs ...models.DispatchJob) {
	if s.broadcaster == nil {
		return
	}
	for _, job := range jobs {
		event := Event{Type: eventType, Job: ViewOf(job), SentAt: s.now()}
		if err := s.broadcaster.Broadcast(ctx, event); err != nil {
			s.logg.Error(s.logg.WithFields(ctx, map[string]any{
				"job_id":     job.ID.String(),
				"event_type": string(eventType),
			}), "dispatch broadcast failed", err)
		}
	}
}

// OpenJobs lists every job still waiting for a courier.
func (s *Service) OpenJobs(ctx context.Context) ([]JobView, error) {
	jobs, err := s.repo.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]JobView, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, ViewOf(job))
	}
	return out, nil
}

// OpenJobForBag returns the job still advertised for the bag, or nil.
func (s *Service) OpenJobForBag(ctx context.Context, bagID uuid.UUID) (*models.DispatchJob, error) {
	return s.repo.FindOpenForBag(ctx, bagID)
}

// Snapshot is what a freshly connected courier receives.
func (s *Service) Snapshot(ctx context.Context) ([]Event, error) {
	views, err := s.OpenJobs(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]Event, 0, len(views))
	for _, view := range views {
		out = append(out, Event{Type: EventJobPublished, Job: view, SentAt: now})
	}
	return out, nil
}

// Rebroadcast re-announces open jobs last broadcast more than age ago.
// Unclaimed jobs never expire; they stay advertised until claimed or
// withdrawn.
func (s *Service) Rebroadcast(ctx context.Context, age time.Duration, limit int) (int, error) {
	now := s.now()
	jobs, err := s.repo.ListOpenBroadcastBefore(ctx, now.Add(-age), limit)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	s.Announce(ctx, EventJobPublished, jobs...)
	ids := make([]uuid.UUID, 0, len(jobs))
	for _, job := range jobs {
		ids = append(ids, job.ID)
	}
	if err := s.repo.TouchBroadcast(ctx, ids, now); err != nil {
		return 0, err
	}
	return len(jobs), nil
}

func (s *Service) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, job *models.DispatchJob) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateDispatchJob,
		AggregateID:   job.ID,
		Data: payloads.DispatchJobEvent{
			JobID:     job.ID,
			BagID:     job.BagID,
			JobType:   job.JobType,
			FeeCents:  job.FeeCents,
			CourierID: job.ClaimedBy,
		},
	})
}

// claimEdge is the bag transition a claim of jobType performs.
func claimEdge(jobType enums.DispatchJobType) (from, to enums.BagStatus) {
	if jobType == enums.DispatchJobTypePickup {
		return enums.BagStatusAwaitingReturnCourier, enums.BagStatusCourierEnRouteToPickup
	}
	return enums.BagStatusAwaitingCourier, enums.BagStatusCourierEnRouteToStore
}
