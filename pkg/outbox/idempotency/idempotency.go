// Package idempotency dedupes outbox events on the Pub/Sub consumer side.
// Pub/Sub delivers at least once, so each consumer claims an event id before
// running side effects and marks it done afterwards.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/budgetdesk-backend/pkg/redis"
)

// ClaimTTL bounds how long a crashed consumer can hold an event; it matches
// the longest Pub/Sub ack deadline.
const ClaimTTL = 10 * time.Minute

const (
	valueProcessing = "processing"
	valueDone       = "done"
)

// Outcome is the result of claiming an event.
type Outcome int

const (
	// Claimed means the caller owns the event and must Complete or Release it.
	Claimed Outcome = iota + 1
	// Duplicate means the event was already handled.
	Duplicate
	// InFlight means another delivery holds the claim right now.
	InFlight
)

func (o Outcome) String() string {
	switch o {
	case Claimed:
		return "claimed"
	case Duplicate:
		return "duplicate"
	case InFlight:
		return "in_flight"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Manager stores bd:idempotency:consumer:<name>:<event id> markers.
type Manager struct {
	store   redis.IdempotencyStore
	doneTTL time.Duration
}

// NewManager keeps done markers for doneTTL; it should outlive the
// subscription's message retention.
func NewManager(store redis.IdempotencyStore, doneTTL time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if doneTTL < ClaimTTL {
		return nil, fmt.Errorf("done ttl %s must be at least the claim ttl %s", doneTTL, ClaimTTL)
	}
	return &Manager{store: store, doneTTL: doneTTL}, nil
}

func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (Outcome, error) {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return 0, err
	}
	ok, err := m.store.SetNX(ctx, key, valueProcessing, ClaimTTL)
	if err != nil {
		return 0, fmt.Errorf("claim %s: %w", key, err)
	}
	if ok {
		return Claimed, nil
	}
	current, err := m.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		// released between SETNX and GET; let the redelivery retry
		return InFlight, nil
	case err != nil:
		return 0, fmt.Errorf("read %s: %w", key, err)
	case current == valueDone:
		return Duplicate, nil
	default:
		return InFlight, nil
	}
}

// Complete turns a claim into a long-lived done marker.
func (m *Manager) Complete(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, key, valueDone, m.doneTTL); err != nil {
		return fmt.Errorf("complete %s: %w", key, err)
	}
	return nil
}

// Release drops a claim so the next delivery can retry the event.
func (m *Manager) Release(ctx context.Context, consumer string, eventID uuid.UUID) error {
	key, err := m.key(consumer, eventID)
	if err != nil {
		return err
	}
	if err := m.store.Del(ctx, key); err != nil {
		return fmt.Errorf("release %s: %w", key, err)
	}
	return nil
}

func (m *Manager) key(consumer string, eventID uuid.UUID) (string, error) {
	if consumer == "" {
		return "", errors.New("consumer name is required")
	}
	if eventID == uuid.Nil {
		return "", errors.New("event id is required")
	}
	return m.store.IdempotencyKey("consumer:"+consumer, eventID.String()), nil
}
