package outbox

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelopeDefaults(t *testing.T) {
	env := newEnvelope(DomainEvent{}, []byte(`{"a":1}`))

	assert.Equal(t, currentVersion, env.Version)
	assert.NotEqual(t, uuid.Nil, env.ID())
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
}

func TestDecodeEnvelope(t *testing.T) {
	id := uuid.New()
	env, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"` + id.String() + `","occurredAt":"2026-01-02T03:04:05Z","data":{"budget_id":"x"}}`))
	require.NoError(t, err)
	assert.Equal(t, id, env.ID())

	_, err = DecodeEnvelope([]byte(`{"eventId":"evt-1","data":{}}`))
	assert.ErrorIs(t, err, ErrEnvelopeEventID)

	_, err = DecodeEnvelope([]byte(`{"eventId":"` + id.String() + `","data":null}`))
	assert.ErrorIs(t, err, ErrEnvelopeData)

	_, err = DecodeEnvelope([]byte(`not json`))
	assert.Error(t, err)
}
