package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/budgetdesk-backend/api/responses"
	pkgerrors "github.com/angelmondragon/budgetdesk-backend/pkg/errors"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/budgetdesk-backend/pkg/redis"
)

// WindowCounter counts one hit against a fixed window.
type WindowCounter interface {
	Hit(ctx context.Context, scope string, limit int64, window time.Duration) (pkgredis.Window, error)
}

// RateLimitPolicy throttles one traffic surface per authenticated user.
type RateLimitPolicy struct {
	Name   string
	Window time.Duration
	Limit  int
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && p.Limit > 0
}

// UserRateLimit applies a fixed-window counter keyed by policy and user id.
// Requests are let through when the counter store is unavailable.
func UserRateLimit(policy RateLimitPolicy, store WindowCounter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			userID := UserIDFromContext(ctx)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}

			state, err := store.Hit(ctx, policy.Name+":"+userID, int64(policy.Limit), policy.Window)
			if err != nil {
				if logg != nil {
					logg.WarnErr(ctx, "rate_limit.store_unavailable", err)
				}
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(state.Limit, 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(state.Remaining(), 10))
			if !state.Allowed {
				w.Header().Set("Retry-After", retryAfter(state.ResetIn, policy.Window))
				if logg != nil {
					logCtx := logg.WithFields(ctx, map[string]any{
						"policy":         policy.Name,
						"attempts":       state.Count,
						"limit":          policy.Limit,
						"window_seconds": int(policy.Window.Seconds()),
					})
					logg.Warn(logCtx, "rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many cart updates, slow down"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retryAfter rounds up to whole seconds; at least one.
func retryAfter(resetIn, window time.Duration) string {
	if resetIn <= 0 {
		resetIn = window
	}
	secs := int64(math.Ceil(resetIn.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}
