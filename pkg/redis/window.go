package redis

import (
	"context"
	"fmt"
	"time"
)

// Window is the state of a fixed-window counter after one hit.
type Window struct {
	Allowed bool
	Count   int64
	Limit   int64
	// ResetIn is how long until the counter expires; zero when unknown.
	ResetIn time.Duration
}

// Remaining is how many more hits fit in the current window.
func (w Window) Remaining() int64 {
	if w.Count >= w.Limit {
		return 0
	}
	return w.Limit - w.Count
}

// Hit counts one request against scope. EXPIRE NX runs on every hit so a
// counter whose first EXPIRE was lost still ages out.
func (c *Client) Hit(ctx context.Context, scope string, limit int64, window time.Duration) (Window, error) {
	if c.cmd == nil {
		return Window{}, errNotInitialized
	}
	key := c.RateLimitKey(scope)
	count, err := c.cmd.Incr(ctx, key).Result()
	if err != nil {
		return Window{}, fmt.Errorf("incr %s: %w", key, err)
	}
	state := Window{Allowed: count <= limit, Count: count, Limit: limit}
	if window <= 0 {
		return state, nil
	}
	if err := c.cmd.ExpireNX(ctx, key, window).Err(); err != nil {
		return state, fmt.Errorf("expire %s: %w", key, err)
	}
	if !state.Allowed {
		if ttl, err := c.cmd.PTTL(ctx, key).Result(); err == nil && ttl > 0 {
			state.ResetIn = ttl
		} else {
			state.ResetIn = window
		}
	}
	return state, nil
}
