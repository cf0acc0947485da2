package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox"
	"github.com/angelmondragon/budgetdesk-backend/pkg/outbox/payloads"
)

type fakeStaleLister struct {
	rows       []models.Cart
	err        error
	lastBefore time.Time
}

func (f *fakeStaleLister) ListStale(_ context.Context, before time.Time, _ int) ([]models.Cart, error) {
	f.lastBefore = before
	return f.rows, f.err
}

type fakeStaleEmitter struct {
	events []outbox.DomainEvent
	seen   map[uuid.UUID]bool
	err    error
}

func (f *fakeStaleEmitter) EmitIfNotExists(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.seen == nil {
		f.seen = map[uuid.UUID]bool{}
	}
	if f.seen[event.AggregateID] {
		return false, nil
	}
	f.seen[event.AggregateID] = true
	f.events = append(f.events, event)
	return true, nil
}

func newStaleJob(t *testing.T, lister staleBudgetLister, emitter staleEmitter, runner txRunner) *staleBudgetJob {
	t.Helper()
	jobIface, err := NewStaleBudgetJob(StaleBudgetJobParams{
		Logger:     testLogger(),
		DB:         runner,
		Budgets:    lister,
		Outbox:     emitter,
		StaleAfter: 72 * time.Hour,
	})
	require.NoError(t, err)
	job := jobIface.(*staleBudgetJob)
	return job
}

func TestStaleBudgetJobEmitsOncePerBudget(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	submitted := now.Add(-80 * time.Hour)
	budget := models.Cart{ID: uuid.New(), UserID: uuid.New(), Status: enums.CartStatusSubmitted, SubmittedAt: &submitted}
	lister := &fakeStaleLister{rows: []models.Cart{budget}}
	emitter := &fakeStaleEmitter{}
	job := newStaleJob(t, lister, emitter, passthroughTx{})
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	assert.True(t, lister.lastBefore.Equal(now.Add(-72*time.Hour)))
	require.Len(t, emitter.events, 1)
	event := emitter.events[0]
	assert.Equal(t, enums.EventBudgetStale, event.EventType)
	assert.Equal(t, enums.AggregateBudget, event.AggregateType)
	payload, ok := event.Data.(payloads.BudgetStaleEvent)
	require.True(t, ok)
	assert.Equal(t, budget.UserID, payload.UserID)
	assert.Equal(t, "80h0m0s", payload.PendingFor)
}

func TestStaleBudgetJobReportsFailures(t *testing.T) {
	now := time.Now()
	rows := []models.Cart{
		{ID: uuid.New(), UserID: uuid.New(), SubmittedAt: &now},
		{ID: uuid.New(), UserID: uuid.New(), SubmittedAt: &now},
	}
	job := newStaleJob(t, &fakeStaleLister{rows: rows}, &fakeStaleEmitter{err: errors.New("db down")}, passthroughTx{})

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), rows[0].ID.String())
	assert.Contains(t, err.Error(), rows[1].ID.String())

	job = newStaleJob(t, &fakeStaleLister{err: errors.New("db down")}, &fakeStaleEmitter{}, passthroughTx{})
	assert.Error(t, job.Run(context.Background()))
}

func TestStaleBudgetJobWritesOutboxRows(t *testing.T) {
	gdb := dbtest.Open(t)
	now := time.Now().UTC().Truncate(time.Second)
	submitted := now.Add(-100 * time.Hour)
	budget := models.Cart{ID: uuid.New(), UserID: uuid.New(), Status: enums.CartStatusSubmitted, SubmittedAt: &submitted}

	emitter := outbox.NewService(outbox.NewRepository(gdb), nil)
	job := newStaleJob(t, &fakeStaleLister{rows: []models.Cart{budget}}, emitter, db.Wrap(gdb))

	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, job.Run(context.Background()))

	var count int64
	require.NoError(t, gdb.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventBudgetStale, budget.ID).
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
