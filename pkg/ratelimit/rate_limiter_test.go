package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter(t *testing.T, cfg *Config) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRateLimiter(client, cfg), mr
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	limiter, _ := newTestLimiter(t, &Config{Enabled: true, WindowDuration: time.Minute, RespondRequests: 3})
	now := time.Date(2026, 4, 10, 9, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := limiter.IsAllowed(ctx, "10.0.0.1", RateLimitTypeRespond)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d within the same instant", i)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := limiter.IsAllowed(ctx, "10.0.0.1", RateLimitTypeRespond)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)

	// other clients have their own window
	res, err = limiter.IsAllowed(ctx, "10.0.0.2", RateLimitTypeRespond)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	now = now.Add(61 * time.Second)
	res, err = limiter.IsAllowed(ctx, "10.0.0.1", RateLimitTypeRespond)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRateLimiter_DisabledAndWhitelisted(t *testing.T) {
	limiter, mr := newTestLimiter(t, &Config{Enabled: false, WindowDuration: time.Minute, DefaultRequests: 1})
	for i := 0; i < 3; i++ {
		res, err := limiter.IsAllowed(context.Background(), "10.0.0.1", RateLimitTypeDefault)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	assert.Empty(t, mr.Keys())

	limiter.config.Enabled = true
	limiter.config.WhitelistedIPs = []string{"10.0.0.9"}
	for i := 0; i < 3; i++ {
		res, err := limiter.IsAllowed(context.Background(), "10.0.0.9", RateLimitTypeDefault)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
}

func TestGetRateLimitType(t *testing.T) {
	tests := []struct {
		path string
		want RateLimitType
	}{
		{"/health", RateLimitTypeHealth},
		{"/api/v1/webhooks/sms", RateLimitTypeWebhook},
		{"/api/v1/admin/sessions/:session_id/release", RateLimitTypeAdmin},
		{"/api/v1/waitlist/sweep", RateLimitTypeAdmin},
		{"/api/v1/sessions/:session_id/waitlist/:entrant_id/respond", RateLimitTypeRespond},
		{"/api/v1/sessions/:session_id/waitlist", RateLimitTypeWaitlist},
		{"/api/v1/sessions/:session_id/capacity", RateLimitTypePublic},
		{"/api/v1/other", RateLimitTypeDefault},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, getRateLimitType(tt.path), tt.path)
	}
}

func TestMiddleware_Returns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, _ := newTestLimiter(t, &Config{Enabled: true, WindowDuration: time.Minute, HealthRequests: 1})

	engine := gin.New()
	engine.Use(Middleware(limiter))
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	first := do()
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", first.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusTooManyRequests, do().Code)
}

func TestMiddleware_FailsOpen(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter, mr := newTestLimiter(t, &Config{Enabled: true, WindowDuration: time.Minute, HealthRequests: 1})
	mr.Close()

	engine := gin.New()
	engine.Use(Middleware(limiter))
	engine.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
