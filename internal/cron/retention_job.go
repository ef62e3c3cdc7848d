package cron

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/bagflow-backend/pkg/logger"
)

const (
	outboxRetention       = 30 * 24 * time.Hour
	outboxTerminalAttempt = 10
	handoffRetention      = 7 * 24 * time.Hour
)

type outboxPurger interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, minAttemptCount int) (int64, error)
}

type handoffPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// retentionJob deletes rows older than a fixed window.
type retentionJob struct {
	name   string
	logg   *logger.Logger
	window time.Duration
	purge  func(ctx context.Context, cutoff time.Time) (int64, error)
	now    func() time.Time
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.window)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if deleted > 0 {
		j.logg.Info(j.logg.WithFields(ctx, map[string]any{
			"cutoff":       cutoff,
			"rows_deleted": deleted,
		}), "retention cleanup complete")
	}
	return nil
}

type OutboxRetentionJobParams struct {
	Logger      *logger.Logger
	Repository  outboxPurger
	Retention   time.Duration
	MinAttempts int
}

// NewOutboxRetentionJob drops published outbox rows, and rows that exhausted
// their publish attempts, once they are older than the retention window.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	window := params.Retention
	if window <= 0 {
		window = outboxRetention
	}
	attempts := params.MinAttempts
	if attempts <= 0 {
		attempts = outboxTerminalAttempt
	}
	return &retentionJob{
		name:   "outbox-retention",
		logg:   params.Logger,
		window: window,
		purge: func(ctx context.Context, cutoff time.Time) (int64, error) {
			return params.Repository.DeletePublishedBefore(ctx, nil, cutoff, attempts)
		},
		now: time.Now,
	}, nil
}

type HandoffPurgeJobParams struct {
	Logger     *logger.Logger
	Repository handoffPurger
	Retention  time.Duration
}

// NewHandoffPurgeJob removes consumed or expired handoff codes.
func NewHandoffPurgeJob(params HandoffPurgeJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("handoff repository required")
	}
	window := params.Retention
	if window <= 0 {
		window = handoffRetention
	}
	return &retentionJob{
		name:   "handoff-purge",
		logg:   params.Logger,
		window: window,
		purge:  params.Repository.PurgeBefore,
		now:    time.Now,
	}, nil
}
