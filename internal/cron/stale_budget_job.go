package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/payloads"
)

const (
	defaultStaleAfter = 72 * time.Hour
	defaultStaleBatch = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type staleBudgetLister interface {
	ListStale(ctx context.Context, submittedBefore time.Time, limit int) ([]models.Cart, error)
}

type staleEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) (bool, error)
}

type StaleBudgetJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Budgets    staleBudgetLister
	Outbox     staleEmitter
	StaleAfter time.Duration
	BatchSize  int
}

// NewStaleBudgetJob queues a budget_stale event for every budget that has been
// waiting for review longer than StaleAfter. Each budget is nudged once.
func NewStaleBudgetJob(params StaleBudgetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Budgets == nil {
		return nil, fmt.Errorf("budget repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	staleAfter := params.StaleAfter
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleBatch
	}
	return &staleBudgetJob{
		logg:       params.Logger,
		db:         params.DB,
		budgets:    params.Budgets,
		outbox:     params.Outbox,
		staleAfter: staleAfter,
		batch:      batch,
		now:        time.Now,
	}, nil
}

type staleBudgetJob struct {
	logg       *logger.Logger
	db         txRunner
	budgets    staleBudgetLister
	outbox     staleEmitter
	staleAfter time.Duration
	batch      int
	now        func() time.Time
}

func (j *staleBudgetJob) Name() string { return "stale-budgets" }

func (j *staleBudgetJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	cutoff := now.Add(-j.staleAfter)
	rows, err := j.budgets.ListStale(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list stale budgets: %w", err)
	}

	var (
		errs    error
		emitted int
	)
	for _, budget := range rows {
		created, err := j.nudge(ctx, budget, now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("budget %s: %w", budget.ID, err))
			continue
		}
		if created {
			emitted++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"scanned": len(rows),
		"emitted": emitted,
	})
	if errs != nil {
		j.logg.Error(logCtx, "stale budget scan finished with errors", errs)
		return errs
	}
	j.logg.Info(logCtx, "stale budget scan complete")
	return nil
}

func (j *staleBudgetJob) nudge(ctx context.Context, budget models.Cart, now time.Time) (bool, error) {
	submittedAt := budget.CreatedAt
	if budget.SubmittedAt != nil {
		submittedAt = *budget.SubmittedAt
	}
	var created bool
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := j.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBudgetStale,
			AggregateType: enums.AggregateBudget,
			AggregateID:   budget.ID,
			Data: payloads.BudgetStaleEvent{
				BudgetID:    budget.ID,
				UserID:      budget.UserID,
				SubmittedAt: submittedAt,
				PendingFor:  now.Sub(submittedAt).Truncate(time.Hour).String(),
			},
		})
		created = ok
		return err
	})
	return created, err
}
