package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/angelmondragon/budgetdesk-backend/internal/budgets"
	"github.com/angelmondragon/budgetdesk-backend/internal/cart"
	"github.com/angelmondragon/budgetdesk-backend/internal/notifications"
	pkgAuth "github.com/angelmondragon/budgetdesk-backend/pkg/auth"
	"github.com/angelmondragon/budgetdesk-backend/pkg/config"
	"github.com/angelmondragon/budgetdesk-backend/pkg/enums"
	"github.com/angelmondragon/budgetdesk-backend/pkg/logger"
	"github.com/angelmondragon/budgetdesk-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/budgetdesk-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryRedis struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]int64
}

func newMemoryRedis() *memoryRedis {
	return &memoryRedis{values: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryRedis) Ping(context.Context) error { return nil }

func (m *memoryRedis) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return "", redis.Nil
	}
	return v, nil
}

func (m *memoryRedis) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryRedis) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value.(string)
	return nil
}

func (m *memoryRedis) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

func (m *memoryRedis) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryRedis) Hit(_ context.Context, scope string, limit int64, window time.Duration) (pkgredis.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[scope]++
	n := m.counters[scope]
	return pkgredis.Window{Allowed: n <= limit, Count: n, Limit: limit, ResetIn: window}, nil
}

type stubCartService struct{}

func (stubCartService) GetOrCreateActive(ctx context.Context, userID uuid.UUID) (*cart.CartDTO, error) {
	return &cart.CartDTO{UserID: userID, Status: enums.CartStatusActive, Items: []cart.ItemDTO{}}, nil
}

func (stubCartService) SetItemQuantity(ctx context.Context, userID, productID uuid.UUID, quantity int) (*cart.CartDTO, error) {
	return &cart.CartDTO{UserID: userID}, nil
}

func (stubCartService) RemoveItem(ctx context.Context, userID, productID uuid.UUID) (*cart.CartDTO, error) {
	return &cart.CartDTO{UserID: userID}, nil
}

type stubBudgetService struct {
	mu      sync.Mutex
	submits int
}

func (s *stubBudgetService) Submit(ctx context.Context, actor budgets.Actor) (*budgets.BudgetDTO, error) {
	s.mu.Lock()
	s.submits++
	s.mu.Unlock()
	return &budgets.BudgetDTO{CartDTO: cart.CartDTO{ID: uuid.New(), UserID: actor.UserID, Status: enums.CartStatusSubmitted}}, nil
}

func (s *stubBudgetService) Approve(ctx context.Context, actor budgets.Actor, id uuid.UUID) (*budgets.BudgetDTO, error) {
	return &budgets.BudgetDTO{CartDTO: cart.CartDTO{ID: id, Status: enums.CartStatusApproved}}, nil
}

func (s *stubBudgetService) Reject(ctx context.Context, actor budgets.Actor, id uuid.UUID) (*budgets.BudgetDTO, error) {
	return &budgets.BudgetDTO{CartDTO: cart.CartDTO{ID: id, Status: enums.CartStatusRejected}}, nil
}

func (s *stubBudgetService) GetByID(ctx context.Context, actor budgets.Actor, id uuid.UUID) (*budgets.BudgetDTO, error) {
	return &budgets.BudgetDTO{CartDTO: cart.CartDTO{ID: id, Status: enums.CartStatusSubmitted}}, nil
}

func (s *stubBudgetService) ListAll(ctx context.Context, actor budgets.Actor, params budgets.ListParams) (*budgets.ListResult, error) {
	return &budgets.ListResult{Items: []budgets.BudgetDTO{}}, nil
}

func (s *stubBudgetService) ListMine(ctx context.Context, userID uuid.UUID) ([]budgets.BudgetDTO, error) {
	return []budgets.BudgetDTO{}, nil
}

func (s *stubBudgetService) RenderPDF(ctx context.Context, actor budgets.Actor, id uuid.UUID) (*budgets.PDF, error) {
	return &budgets.PDF{Filename: "budget.pdf", Content: []byte("%PDF")}, nil
}

func (s *stubBudgetService) submitCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submits
}

type stubNotificationsService struct{}

func (stubNotificationsService) Notify(ctx context.Context, input notifications.NotifyInput) (*notifications.NotificationDTO, error) {
	return nil, nil
}

func (stubNotificationsService) NotifyMany(ctx context.Context, userIDs []uuid.UUID, input notifications.NotifyInput) (int, error) {
	return 0, nil
}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}, MaxAgeSeconds: 300},
		RateLimit: config.RateLimitConfig{CartWindow: time.Minute, CartLimit: 120},
	}
}

type testRouter struct {
	http.Handler
	budgets *stubBudgetService
}

func newTestRouter(cfg *config.Config) testRouter {
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	reg := prometheus.NewRegistry()
	budgetSvc := &stubBudgetService{}
	return testRouter{
		Handler: NewRouter(RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            stubPinger{},
			Redis:         newMemoryRedis(),
			Cart:          stubCartService{},
			Budgets:       budgetSvc,
			Notifications: stubNotificationsService{},
			Gatherer:      reg,
			HTTPMetrics:   metrics.NewHTTPMetrics(reg),
		}),
		budgets: budgetSvc,
	}
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	return buildTokenWithUserID(t, cfg, role, uuid.New())
}

func buildTokenWithUserID(t *testing.T, cfg *config.Config, role enums.UserRole, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func serve(router http.Handler, req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutesArePublic(t *testing.T) {
	router := newTestRouter(testConfig())
	for _, path := range []string{"/health/live", "/health/ready"} {
		if resp := serve(router, httptest.NewRequest(http.MethodGet, path, nil)); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestMetricsExposeHTTPRequests(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleUser))
	serve(router, req)

	resp := serve(router, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "/api/v1/cart") {
		t.Fatalf("expected cart route in metrics output")
	}
}

func TestAPIRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := serve(router, httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAPISucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	for _, path := range []string{"/api/v1/cart", "/api/v1/budgets/my", "/api/v1/notifications"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleUser))
		if resp := serve(router, req); resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d", path, resp.Code)
		}
	}
}

func TestReviewRoutesRequirePrivilegedRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	budgetID := uuid.NewString()

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/budgets"},
		{http.MethodPut, "/api/v1/budgets/" + budgetID + "/approve"},
		{http.MethodPut, "/api/v1/budgets/" + budgetID + "/reject"},
	}
	for _, tc := range cases {
		user := httptest.NewRequest(tc.method, tc.path, nil)
		user.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleUser))
		if resp := serve(router, user); resp.Code != http.StatusForbidden {
			t.Fatalf("%s %s: expected 403 for user got %d", tc.method, tc.path, resp.Code)
		}

		for _, role := range []enums.UserRole{enums.UserRoleAdmin, enums.UserRoleDev} {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, role))
			if resp := serve(router, req); resp.Code != http.StatusOK {
				t.Fatalf("%s %s: expected 200 for %s got %d", tc.method, tc.path, role, resp.Code)
			}
		}
	}
}

func TestBudgetPDFRoute(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/budgets/"+uuid.NewString()+"/pdf", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleUser))
	resp := serve(router, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if resp.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("unexpected content type %q", resp.Header().Get("Content-Type"))
	}
}

func TestSubmitReplaysWithIdempotencyKey(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	token := buildToken(t, cfg, enums.UserRoleUser)

	var bodies []string
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/cart/submit", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "submit-1")
		resp := serve(router, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d", i, resp.Code)
		}
		bodies = append(bodies, resp.Body.String())
	}
	if router.budgets.submitCount() != 1 {
		t.Fatalf("expected one submit, got %d", router.budgets.submitCount())
	}
	if bodies[0] != bodies[1] {
		t.Fatal("expected replayed response to match the original")
	}
}

func TestCartRateLimitCoversItemMutationsOnly(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.CartLimit = 2
	router := newTestRouter(cfg)
	token := buildToken(t, cfg, enums.UserRoleUser)

	call := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		return serve(router, req)
	}
	setItem := `{"productId":"` + uuid.NewString() + `","quantity":1}`

	if resp := call(http.MethodPost, "/api/v1/cart/items", setItem); resp.Code == http.StatusTooManyRequests || resp.Header().Get("X-RateLimit-Limit") != "2" {
		t.Fatalf("first mutation: code %d limit header %q", resp.Code, resp.Header().Get("X-RateLimit-Limit"))
	}
	if resp := call(http.MethodDelete, "/api/v1/cart/items/"+uuid.NewString(), ""); resp.Code == http.StatusTooManyRequests {
		t.Fatal("second mutation should still be allowed")
	}
	if resp := call(http.MethodPost, "/api/v1/cart/items", setItem); resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after limit got %d", resp.Code)
	}

	for i := 0; i < 3; i++ {
		resp := call(http.MethodGet, "/api/v1/cart", "")
		if resp.Code != http.StatusOK {
			t.Fatalf("cart fetch %d: expected 200 got %d", i, resp.Code)
		}
		if resp.Header().Get("X-RateLimit-Limit") != "" {
			t.Fatal("cart fetch must not be throttled")
		}
	}
	if resp := call(http.MethodPost, "/api/v1/cart/submit", ""); resp.Code != http.StatusCreated {
		t.Fatalf("submit after throttled mutations: expected 201 got %d", resp.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/cart", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	resp := serve(router, req)
	if got := resp.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}
