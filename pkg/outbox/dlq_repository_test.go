package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/budgetdesk-backend/pkg/db/dbtest"
	"github.com/angelmondragon/budgetdesk-backend/pkg/db/models"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
)

func deadLetter(eventID uuid.UUID, reason enums.OutboxDLQErrorReason, msg string) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       eventID,
		EventType:     enums.EventBudgetSubmitted,
		AggregateType: enums.AggregateBudget,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1}`),
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  5,
	}
}

func TestDLQRepositoryInsertAndList(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	long := strings.Repeat("é", maxDLQErrorLen)
	require.NoError(t, dlq.InsertTx(conn, deadLetter(uuid.New(), enums.OutboxDLQReasonMaxAttempts, long)))
	require.NoError(t, dlq.InsertTx(conn, deadLetter(uuid.New(), enums.OutboxDLQReasonNonRetryable, "bad payload")))
	assert.Error(t, dlq.InsertTx(conn, deadLetter(uuid.New(), "gave_up", "x")))
	assert.Error(t, dlq.InsertTx(nil, deadLetter(uuid.New(), enums.OutboxDLQReasonMaxAttempts, "x")))

	all, err := dlq.List(ctx, "", 0)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	capped, err := dlq.List(ctx, enums.OutboxDLQReasonMaxAttempts, 10)
	require.NoError(t, err)
	require.Len(t, capped, 1)
	msg := *capped[0].ErrorMessage
	assert.LessOrEqual(t, len(msg), maxDLQErrorLen)
	assert.True(t, utf8.ValidString(msg), "truncation keeps runes whole")
}

func TestDLQRequeueResetsParkedRow(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	require.NoError(t, NewService(repo, nil).Emit(ctx, conn, budgetEvent(uuid.New(), enums.EventBudgetSubmitted)))
	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	eventID := rows[0].ID

	require.NoError(t, repo.MarkTerminalTx(conn, eventID, errors.New("smtp down"), 5))
	require.NoError(t, dlq.InsertTx(conn, deadLetter(eventID, enums.OutboxDLQReasonMaxAttempts, "smtp down")))
	parked, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Empty(t, parked)

	require.NoError(t, dlq.Requeue(ctx, eventID))

	again, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, eventID, again[0].ID)
	assert.Zero(t, again[0].AttemptCount)
	assert.Nil(t, again[0].LastError)

	left, err := dlq.List(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, left)

	assert.ErrorIs(t, dlq.Requeue(ctx, eventID), ErrNotDeadLettered)
}

func TestDLQRequeueRecreatesMissingRow(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)
	eventID := uuid.New()

	require.NoError(t, dlq.InsertTx(conn, deadLetter(eventID, enums.OutboxDLQReasonNonRetryable, "unknown event")))
	require.NoError(t, dlq.Requeue(context.Background(), eventID))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, eventID, rows[0].ID)
	assert.JSONEq(t, `{"version":1}`, string(rows[0].Payload))
}

func TestDLQRequeueAfterHandlerGaveUpOnDeliveredRow(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	require.NoError(t, NewService(repo, nil).Emit(ctx, conn, budgetEvent(uuid.New(), enums.EventBudgetApproved)))
	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	event := rows[0]

	// delivered to the local queue, then the handler failed for good
	require.NoError(t, repo.MarkPublishedTx(conn, event.ID))
	require.NoError(t, repo.ReopenTx(conn, event.ID, errors.New("notifications unavailable")))
	reopened, err := repo.FindTx(conn, event.ID)
	require.NoError(t, err)
	assert.Nil(t, reopened.PublishedAt)
	assert.Equal(t, 1, reopened.AttemptCount)

	require.NoError(t, repo.MarkPublishedTx(conn, event.ID))
	require.NoError(t, dlq.InsertTx(conn, reopened.DeadLetter(enums.OutboxDLQReasonMaxAttempts, errors.New("still unavailable"), time.Now())))
	require.NoError(t, repo.MarkTerminalTx(conn, event.ID, errors.New("still unavailable"), 3))

	deleted, err := repo.DeletePublishedBefore(ctx, time.Now().UTC().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Zero(t, deleted, "parked rows are not published and survive retention")

	require.NoError(t, dlq.Requeue(ctx, event.ID))
	again, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, event.ID, again[0].ID)
	assert.Zero(t, again[0].AttemptCount)
}
