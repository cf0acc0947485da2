package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	pkgredis "github.com/angelmondragon/budgetdesk-backend/pkg/redis"
)

type fakeLimiter struct {
	counts map[string]int64
	err    error
}

func (f *fakeLimiter) Hit(_ context.Context, scope string, limit int64, window time.Duration) (pkgredis.Window, error) {
	if f.err != nil {
		return pkgredis.Window{}, f.err
	}
	f.counts[scope]++
	state := pkgredis.Window{Allowed: f.counts[scope] <= limit, Count: f.counts[scope], Limit: limit}
	if !state.Allowed {
		state.ResetIn = window / 2
	}
	return state, nil
}

func TestUserRateLimitBlocksAfterLimit(t *testing.T) {
	limiter := &fakeLimiter{counts: map[string]int64{}}
	policy := RateLimitPolicy{Name: "cart", Window: time.Minute, Limit: 2}
	handler := UserRateLimit(policy, limiter, nil)(okHandler())
	user := uuid.New()

	codes := []int{}
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
		req = req.WithContext(WithActor(req.Context(), Actor{UserID: user, Role: enums.UserRoleUser}))
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusOK || codes[2] != http.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
	if got := last.Header().Get("Retry-After"); got != "30" {
		t.Fatalf("expected Retry-After 30, got %q", got)
	}
	if got := last.Header().Get("X-RateLimit-Remaining"); got != "0" {
		t.Fatalf("expected no remaining hits, got %q", got)
	}

	other := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	other = other.WithContext(WithActor(other.Context(), Actor{UserID: uuid.New(), Role: enums.UserRoleUser}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, other)
	if resp.Code != http.StatusOK {
		t.Fatalf("limits must be per user, got %d", resp.Code)
	}
}

func TestUserRateLimitFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	handler := UserRateLimit(RateLimitPolicy{Name: "cart", Window: time.Minute, Limit: 1}, limiter, nil)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/items", nil)
	req = req.WithContext(WithActor(req.Context(), Actor{UserID: uuid.New(), Role: enums.UserRoleUser}))
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected request to pass, got %d", resp.Code)
	}
}

func TestRetryAfterRoundsUp(t *testing.T) {
	cases := map[string]struct {
		resetIn, window time.Duration
		want            string
	}{
		"fraction":        {resetIn: 1500 * time.Millisecond, window: time.Minute, want: "2"},
		"unknown ttl":     {resetIn: 0, window: time.Minute, want: "60"},
		"sub second":      {resetIn: time.Millisecond, window: time.Minute, want: "1"},
		"zero everything": {resetIn: 0, window: 0, want: "1"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if got := retryAfter(tc.resetIn, tc.window); got != tc.want {
				t.Fatalf("retryAfter(%s, %s) = %s, want %s", tc.resetIn, tc.window, got, tc.want)
			}
		})
	}
}
