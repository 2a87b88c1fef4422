package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Config constructors
// ---------------------------------------------------------------------------

func TestRateLimitConfigs(t *testing.T) {
	tests := []struct {
		name      string
		cfg       RateLimitConfig
		rpm       int
		burstSize int
	}{
		{"default", DefaultRateLimitConfig(), 60, 10},
		{"auth", AuthRateLimitConfig(), 10, 5},
		{"upload", UploadRateLimitConfig(), 30, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.rpm, tt.cfg.RequestsPerMinute)
			assert.Equal(t, tt.burstSize, tt.cfg.BurstSize)
		})
	}
}

// ---------------------------------------------------------------------------
// RateLimiter (in-memory)
// ---------------------------------------------------------------------------

func newTestLimiter(t *testing.T, rpm, burst int) (*RateLimiter, *time.Time) {
	t.Helper()
	rl := NewRateLimiter(RateLimitConfig{RequestsPerMinute: rpm, BurstSize: burst, CleanupInterval: time.Hour})
	t.Cleanup(rl.Stop)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }
	return rl, &now
}

func TestRateLimiter_AllowsBurstThenDenies(t *testing.T) {
	rl, _ := newTestLimiter(t, 60, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, remaining, err := rl.Allow(ctx, "client")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 2-i, remaining)
	}

	allowed, remaining, err := rl.Allow(ctx, "client")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestRateLimiter_Refills(t *testing.T) {
	rl, now := newTestLimiter(t, 60, 1)
	ctx := context.Background()

	allowed, _, _ := rl.Allow(ctx, "client")
	require.True(t, allowed)
	allowed, _, _ = rl.Allow(ctx, "client")
	require.False(t, allowed)

	*now = now.Add(time.Second) // 60 rpm refills one token per second
	allowed, _, _ = rl.Allow(ctx, "client")
	assert.True(t, allowed)
}

func TestRateLimiter_KeysAreIndependent(t *testing.T) {
	rl, _ := newTestLimiter(t, 60, 1)
	ctx := context.Background()

	allowed, _, _ := rl.Allow(ctx, "a")
	assert.True(t, allowed)
	allowed, _, _ = rl.Allow(ctx, "b")
	assert.True(t, allowed)
	allowed, _, _ = rl.Allow(ctx, "a")
	assert.False(t, allowed)
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(DefaultRateLimitConfig())
	rl.Stop()
	rl.Stop()
}

// ---------------------------------------------------------------------------
// RedisLimiter
// ---------------------------------------------------------------------------

func newRedisLimiter(t *testing.T, rpm, burst int) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewRedisClient("redis://" + mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return NewRedisLimiter(client, RateLimitConfig{RequestsPerMinute: rpm, BurstSize: burst}, "test"), mr
}

func TestRedisLimiter_EnforcesBurst(t *testing.T) {
	rl, _ := newRedisLimiter(t, 3, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := rl.Allow(ctx, "ip:10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i+1)
	}

	allowed, remaining, err := rl.Allow(ctx, "ip:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)

	allowed, _, err = rl.Allow(ctx, "ip:10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed, "other clients keep their own budget")
}

func TestRedisLimiter_ErrorWhenRedisDown(t *testing.T) {
	rl, mr := newRedisLimiter(t, 3, 3)
	mr.Close()

	_, _, err := rl.Allow(context.Background(), "ip:10.0.0.1")
	assert.Error(t, err)
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient("http://not-redis")
	assert.Error(t, err)
}

// ---------------------------------------------------------------------------
// RateLimitMiddleware
// ---------------------------------------------------------------------------

type erroringLimiter struct{}

func (erroringLimiter) Allow(context.Context, string) (bool, int, error) {
	return false, 0, errors.New("redis: connection refused")
}

func newRateLimitedRouter(limiter Limiter) *gin.Engine {
	r := gin.New()
	r.Use(RateLimitMiddleware(limiter, 60))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	rl, _ := newTestLimiter(t, 60, 1)
	r := newRateLimitedRouter(rl)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "Rate limit exceeded", errorMessage(t, w))
}

func TestRateLimitMiddleware_FailsOpen(t *testing.T) {
	r := newRateLimitedRouter(erroringLimiter{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimitMiddleware_RedisBackend(t *testing.T) {
	rl, _ := newRedisLimiter(t, 2, 2)
	r := newRateLimitedRouter(rl)

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestGetRateLimitKey(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "192.0.2.7:1234"

	assert.Equal(t, "ip:192.0.2.7", getRateLimitKey(c))

	c.Set(UserIDKey, "u-1")
	assert.Equal(t, "user:u-1", getRateLimitKey(c))
}
