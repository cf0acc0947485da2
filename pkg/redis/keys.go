package redis

import "strings"

// Every key lives under bd:<kind>:... so a shared Redis can be flushed per
// concern with a SCAN on the prefix.
const keyNamespace = "bd"

const (
	kindIdempotency = "idempotency"
	kindRateLimit   = "rate_limit"
	kindLease       = "lease"
)

// IdempotencyKey scopes a replay or dedupe record, e.g. ("consumer", eventID).
func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(kindIdempotency, scope, id)
}

// RateLimitKey holds the counter for one policy window.
func (c *Client) RateLimitKey(scope string) string {
	return joinKey(kindRateLimit, scope)
}

// LeaseKey names an exclusive lease such as the cron run lock.
func (c *Client) LeaseKey(name string) string {
	return joinKey(kindLease, name)
}

func joinKey(parts ...string) string {
	out := make([]string, 0, len(parts)+1)
	out = append(out, keyNamespace)
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return strings.Join(out, ":")
}
