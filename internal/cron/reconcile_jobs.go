package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

const (
	defaultBatchSize      = 100
	defaultRebroadcastAge = 5 * time.Minute
	defaultStaleAfter     = 10 * time.Minute
)

type rebroadcaster interface {
	Rebroadcast(ctx context.Context, age time.Duration, limit int) (int, error)
}

type staleReconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type DispatchRebroadcastJobParams struct {
	Logger    *logger.Logger
	Dispatch  rebroadcaster
	Age       time.Duration
	BatchSize int
}

// NewDispatchRebroadcastJob re-announces open jobs nobody has claimed so
// couriers who connected late, or missed a frame, still see them.
func NewDispatchRebroadcastJob(params DispatchRebroadcastJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Dispatch == nil {
		return nil, fmt.Errorf("dispatch service required")
	}
	job := &dispatchRebroadcastJob{
		logg:  params.Logger,
		svc:   params.Dispatch,
		age:   params.Age,
		limit: params.BatchSize,
	}
	if job.age <= 0 {
		job.age = defaultRebroadcastAge
	}
	if job.limit <= 0 {
		job.limit = defaultBatchSize
	}
	return job, nil
}

type dispatchRebroadcastJob struct {
	logg  *logger.Logger
	svc   rebroadcaster
	age   time.Duration
	limit int
}

func (j *dispatchRebroadcastJob) Name() string { return "dispatch-rebroadcast" }

func (j *dispatchRebroadcastJob) Run(ctx context.Context) error {
	n, err := j.svc.Rebroadcast(ctx, j.age, j.limit)
	if err != nil {
		return fmt.Errorf("rebroadcast open jobs: %w", err)
	}
	if n > 0 {
		j.logg.Info(j.logg.WithField(ctx, "jobs", n), "open dispatch jobs rebroadcast")
	}
	return nil
}

type StalePaymentJobParams struct {
	Logger     *logger.Logger
	Ledger     staleReconciler
	StaleAfter time.Duration
	BatchSize  int
}

// NewStalePaymentJob polls the gateway for ledger entries whose webhook
// never arrived and resubmits refunds that did not reach it.
func NewStalePaymentJob(params StalePaymentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	job := &stalePaymentJob{
		logg:  params.Logger,
		svc:   params.Ledger,
		after: params.StaleAfter,
		limit: params.BatchSize,
	}
	if job.after <= 0 {
		job.after = defaultStaleAfter
	}
	if job.limit <= 0 {
		job.limit = defaultBatchSize
	}
	return job, nil
}

type stalePaymentJob struct {
	logg  *logger.Logger
	svc   staleReconciler
	after time.Duration
	limit int
}

func (j *stalePaymentJob) Name() string { return "stale-payments" }

// Run reports entries it moved even when some lookups failed.
func (j *stalePaymentJob) Run(ctx context.Context) error {
	changed, err := j.svc.ReconcileStale(ctx, j.after, j.limit)
	if changed > 0 {
		j.logg.Info(j.logg.WithField(ctx, "entries_changed", changed), "stale ledger entries reconciled")
	}
	if err != nil {
		return fmt.Errorf("reconcile stale payments: %w", err)
	}
	return nil
}
