package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
)

func budgetEvent(aggregateID uuid.UUID, eventType enums.OutboxEventType) DomainEvent {
	return DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateBudget,
		AggregateID:   aggregateID,
		Actor:         &ActorRef{UserID: uuid.New(), Role: "user"},
		Data:          map[string]string{"budget_id": aggregateID.String()},
	}
}

func TestEmitWritesEnvelopeInTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	budgetID := uuid.New()

	require.NoError(t, svc.Emit(context.Background(), conn, budgetEvent(budgetID, enums.EventBudgetSubmitted)))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, budgetID, rows[0].AggregateID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, rows[0].ID.String(), envelope.EventID)
	assert.False(t, envelope.OccurredAt.IsZero())
	assert.JSONEq(t, `{"budget_id":"`+budgetID.String()+`"}`, string(envelope.Data))
}

func TestEmitRejectsIncompleteEvents(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	noData := budgetEvent(uuid.New(), enums.EventBudgetSubmitted)
	noData.Data = nil
	unknown := budgetEvent(uuid.New(), "order_created")
	orphan := budgetEvent(uuid.Nil, enums.EventBudgetSubmitted)

	for _, event := range []DomainEvent{noData, unknown, orphan} {
		assert.Error(t, svc.Emit(ctx, conn, event))
	}
	assert.Error(t, svc.Emit(ctx, nil, budgetEvent(uuid.New(), enums.EventBudgetSubmitted)))
}

func TestEmitRolledBackWithTransaction(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	tx := conn.Begin()
	require.NoError(t, svc.Emit(context.Background(), tx, budgetEvent(uuid.New(), enums.EventBudgetApproved)))
	require.NoError(t, tx.Rollback().Error)

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestEmitIfNotExistsWritesOnce(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	budgetID := uuid.New()
	ctx := context.Background()

	written, err := svc.EmitIfNotExists(ctx, conn, budgetEvent(budgetID, enums.EventBudgetStale))
	require.NoError(t, err)
	assert.True(t, written)

	written, err = svc.EmitIfNotExists(ctx, conn, budgetEvent(budgetID, enums.EventBudgetStale))
	require.NoError(t, err)
	assert.False(t, written)

	written, err = svc.EmitIfNotExists(ctx, conn, budgetEvent(budgetID, enums.EventBudgetApproved))
	require.NoError(t, err)
	assert.True(t, written)
}

func TestRepositoryAttemptsAndRetention(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	require.NoError(t, svc.Emit(ctx, conn, budgetEvent(uuid.New(), enums.EventBudgetSubmitted)))
	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	id := rows[0].ID

	require.NoError(t, repo.MarkFailedTx(conn, id, errors.New("sink down")))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "sink down", *rows[0].LastError)

	require.NoError(t, repo.MarkTerminalTx(conn, id, errors.New("gave up"), 2))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 2)
	require.NoError(t, err)
	assert.Empty(t, rows, "terminal rows must not be fetched again")

	require.NoError(t, svc.Emit(ctx, conn, budgetEvent(uuid.New(), enums.EventBudgetRejected)))
	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 2)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)

	deleted, err = repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = repo.DeletePublishedBefore(ctx, time.Now().UTC(), 0)
	assert.Error(t, err)
}
