package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
)

const (
	defaultRetentionDays  = 30
	defaultRetentionBatch = 1000
)

type outboxPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	Repository outboxPruner
	// RetentionDays is how long delivered rows are kept.
	RetentionDays int
	// BatchSize bounds each DELETE statement.
	BatchSize int
}

// NewOutboxRetentionJob prunes delivered outbox rows older than the retention
// window in bounded batches. Undelivered rows and the DLQ are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:  params.Logger,
		repo:  params.Repository,
		days:  params.RetentionDays,
		batch: params.BatchSize,
		now:   time.Now,
	}
	if job.days <= 0 {
		job.days = defaultRetentionDays
	}
	if job.batch <= 0 {
		job.batch = defaultRetentionBatch
	}
	return job, nil
}

type outboxRetentionJob struct {
	logg  *logger.Logger
	repo  outboxPruner
	days  int
	batch int
	now   func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().AddDate(0, 0, -j.days)

	var total int64
	batches := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		deleted, err := j.repo.DeletePublishedBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("outbox retention after %d rows: %w", total, err)
		}
		total += deleted
		batches++
		if deleted < int64(j.batch) {
			break
		}
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"retention_days": j.days,
		"rows_deleted":   total,
		"batches":        batches,
	}), "outbox retention cleanup complete")
	return nil
}
