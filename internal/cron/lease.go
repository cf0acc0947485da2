package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/budgetdesk-backend/pkg/instance"
)

const defaultLeaseTTL = time.Hour

// Lease guarantees that only one cron worker runs a cycle at a time.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
	// Holder reports who owns the lease, empty when free.
	Holder(ctx context.Context) (string, error)
}

type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LeaseKey(name string) string
}

// RedisLease stores "<instance>/<token>" under bd:lease:<name>. The TTL bounds
// how long a crashed worker can block the others.
type RedisLease struct {
	store leaseStore
	key   string
	ttl   time.Duration
	token string
	held  string
}

func NewRedisLease(store leaseStore, name string, ttl time.Duration) (*RedisLease, error) {
	if store == nil {
		return nil, errors.New("redis store required for cron lease")
	}
	if name == "" {
		return nil, errors.New("lease name is required")
	}
	if ttl <= 0 {
		ttl = defaultLeaseTTL
	}
	return &RedisLease{
		store: store,
		key:   store.LeaseKey(name),
		ttl:   ttl,
		token: instance.GetID(),
	}, nil
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	value := l.token + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, value, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if ok {
		l.held = value
	}
	return ok, nil
}

// Release deletes the lease only while this worker still owns it; an expired
// lease picked up by another worker is left alone.
func (l *RedisLease) Release(ctx context.Context) error {
	if l.held == "" {
		return nil
	}
	current, err := l.Holder(ctx)
	if err != nil {
		return err
	}
	held := l.held
	l.held = ""
	if current != held {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

func (l *RedisLease) Holder(ctx context.Context) (string, error) {
	value, err := l.store.Get(ctx, l.key)
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read lease %s: %w", l.key, err)
	}
	return value, nil
}
