package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/promptarchitect/server/internal/config"
	"github.com/promptarchitect/server/internal/db"
	"github.com/promptarchitect/server/internal/models"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMemoryLimiterFixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	ctx := context.Background()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		res, err := limiter.Allow(ctx, "u:1", 3, time.Minute, start.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i)
		}
		if res.Remaining != 2-i {
			t.Fatalf("request %d: expected remaining %d, got %d", i, 2-i, res.Remaining)
		}
	}
	res, _ := limiter.Allow(ctx, "u:1", 3, time.Minute, start.Add(30*time.Second))
	if res.Allowed {
		t.Fatalf("fourth request should be blocked")
	}
	if !res.Reset.Equal(start.Add(time.Minute)) {
		t.Fatalf("unexpected reset %s", res.Reset)
	}

	other, _ := limiter.Allow(ctx, "u:2", 3, time.Minute, start.Add(30*time.Second))
	if !other.Allowed {
		t.Fatalf("other key should not share the counter")
	}

	next, _ := limiter.Allow(ctx, "u:1", 3, time.Minute, start.Add(time.Minute))
	if !next.Allowed {
		t.Fatalf("next window should reset the counter")
	}
}

func TestMemoryLimiterPrune(t *testing.T) {
	limiter := NewMemoryLimiter()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	_, _ = limiter.Allow(context.Background(), "u:1", 5, time.Minute, start)
	if removed := limiter.Prune(time.Minute, start.Add(10*time.Second)); removed != 0 {
		t.Fatalf("expected no pruning inside the window, got %d", removed)
	}
	if removed := limiter.Prune(time.Minute, start.Add(2*time.Minute)); removed != 1 {
		t.Fatalf("expected 1 pruned entry, got %d", removed)
	}
}

func TestManagerFallsBackToMemoryWhenRedisDown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	settings := SettingsFromConfig(config.RateLimitConfig{Limit: 2, Window: time.Minute})
	settings.RedisEnabled = true
	settings.RedisAddr = "127.0.0.1:1"

	created := 0
	manager := NewManager(StaticSettings(settings), clock.Now, func(options *redis.Options) *redis.Client {
		created++
		options.DialTimeout = 100 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	})
	t.Cleanup(func() { _ = manager.Close() })

	for i := 0; i < 2; i++ {
		res, err := manager.Allow(context.Background(), "gen:u:1", 2)
		if err != nil || !res.Allowed {
			t.Fatalf("request %d should be allowed, got %+v err=%v", i, res, err)
		}
	}
	res, _ := manager.Allow(context.Background(), "gen:u:1", 2)
	if res.Allowed {
		t.Fatalf("third request should be blocked by the memory fallback")
	}
	if created != 1 {
		t.Fatalf("expected breaker to stop redis reconnects, got %d clients", created)
	}
}

func TestManagerDisabledLimit(t *testing.T) {
	manager := NewManager(nil, nil, nil)
	res, err := manager.Allow(context.Background(), "gen:u:1", 0)
	if err != nil || !res.Allowed {
		t.Fatalf("zero limit should always allow")
	}
}

func TestSettingsFromConfigDefaults(t *testing.T) {
	settings := SettingsFromConfig(config.RateLimitConfig{Limit: -5, Window: 0})
	if settings.Limit != 0 {
		t.Fatalf("expected negative limit to clamp to 0, got %d", settings.Limit)
	}
	if settings.Window != DefaultWindow {
		t.Fatalf("expected default window, got %s", settings.Window)
	}
	if settings.RedisPrefix != DefaultRedisPrefix {
		t.Fatalf("expected default prefix, got %q", settings.RedisPrefix)
	}
}

func TestKeyForUser(t *testing.T) {
	if got := KeyForUser("generate", "abc"); got != "generate:u:abc" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := KeyForUser("", "abc"); got != "u:abc" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := KeyForUser("generate", ""); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
}

func TestLimitResolverUsesTierFeature(t *testing.T) {
	conn, err := db.Open(db.BuildSQLiteDSN(filepath.Join(t.TempDir(), "ratelimit.db")))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(conn) })
	if err := db.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := conn.Create(&models.SubscriptionTier{
		ID:       "pro",
		Name:     "Pro",
		IsActive: true,
		Features: datatypes.JSON([]byte(`{"rate_limit":120}`)),
	}).Error; err != nil {
		t.Fatalf("create tier: %v", err)
	}
	for userID, tierID := range map[string]string{"user-pro": "pro", "user-free": models.FreeTierID} {
		if err := conn.Create(&models.UserSubscription{UserID: userID, TierID: tierID, Status: models.SubscriptionStatusActive}).Error; err != nil {
			t.Fatalf("create subscription: %v", err)
		}
	}

	resolver := NewLimitResolver(conn, 20)
	ctx := context.Background()
	cases := map[string]int{"user-pro": 120, "user-free": 20, "user-missing": 20}
	for userID, want := range cases {
		got, err := resolver.ResolveLimit(ctx, userID)
		if err != nil {
			t.Fatalf("%s: resolve: %v", userID, err)
		}
		if got != want {
			t.Fatalf("%s: expected %d, got %d", userID, want, got)
		}
	}
}

func TestMiddlewareSetsHeadersAndBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)}
	manager := NewManager(StaticSettings(SettingsFromConfig(config.RateLimitConfig{Limit: 2, Window: time.Minute})), clock.Now, nil)
	limitFn := func(context.Context, string) (int, error) { return 2, nil }

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("userID", c.GetHeader("X-Test-User"))
		c.Next()
	})
	router.POST("/generate", Middleware(manager, "generate", limitFn, func(c *gin.Context) string {
		return c.GetString("userID")
	}), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/generate", nil)
		req.Header.Set("X-Test-User", user)
		resp := httptest.NewRecorder()
		router.ServeHTTP(resp, req)
		return resp
	}

	first := do("user-1")
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}
	if first.Header().Get("X-RateLimit-Limit") != "2" || first.Header().Get("X-RateLimit-Remaining") != "1" {
		t.Fatalf("unexpected headers %v", first.Header())
	}
	wantReset := strconv.FormatInt(time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC).Unix(), 10)
	if first.Header().Get("X-RateLimit-Reset") != wantReset {
		t.Fatalf("unexpected reset header %q", first.Header().Get("X-RateLimit-Reset"))
	}

	_ = do("user-1")
	blocked := do("user-1")
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", blocked.Code)
	}
	if blocked.Header().Get("Retry-After") != "51" {
		t.Fatalf("unexpected Retry-After %q", blocked.Header().Get("Retry-After"))
	}
	var body map[string]string
	if err := json.Unmarshal(blocked.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["code"] != "RateLimited" {
		t.Fatalf("unexpected body %v", body)
	}

	if other := do("user-2"); other.Code != http.StatusOK {
		t.Fatalf("other user should not be limited, got %d", other.Code)
	}
	if anonymous := do(""); anonymous.Code != http.StatusOK {
		t.Fatalf("requests without a user should pass, got %d", anonymous.Code)
	}

	clock.Advance(time.Minute)
	if next := do("user-1"); next.Code != http.StatusOK {
		t.Fatalf("expected window reset, got %d", next.Code)
	}
}
