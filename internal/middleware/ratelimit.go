// ratelimit.go provides Gin middleware that enforces per-client rate limits,
// returning 429 once a client's budget is spent. The budget is tracked either
// in process (RateLimiter) or in Redis (RedisLimiter).
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Limiter decides whether the client identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, remaining int, err error)
}

// RateLimitConfig holds configuration for rate limiting
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained refill rate
	RequestsPerMinute int
	// BurstSize is the maximum burst of requests allowed
	BurstSize int
	// CleanupInterval is how often idle in-memory entries are dropped
	CleanupInterval time.Duration
}

// DefaultRateLimitConfig returns limits for general authenticated traffic
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 60,
		BurstSize:         10,
		CleanupInterval:   5 * time.Minute,
	}
}

// AuthRateLimitConfig returns stricter limits for login and registration
func AuthRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

// UploadRateLimitConfig returns limits for document upload and verification
func UploadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 30,
		BurstSize:         5,
		CleanupInterval:   5 * time.Minute,
	}
}

type rateLimitEntry struct {
	tokens     float64
	lastUpdate time.Time
}

// RateLimiter is an in-memory token bucket. It only limits a single process.
type RateLimiter struct {
	config   RateLimitConfig
	entries  map[string]*rateLimitEntry
	mu       sync.Mutex
	stopCh   chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewRateLimiter creates a new rate limiter with the given config
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = 5 * time.Minute
	}
	rl := &RateLimiter{
		config:  config,
		entries: make(map[string]*rateLimitEntry),
		stopCh:  make(chan struct{}),
		now:     time.Now,
	}

	go rl.cleanup()

	return rl
}

// cleanup periodically removes entries idle for ten minutes
func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, entry := range rl.entries {
				if now.Sub(entry.lastUpdate) > 10*time.Minute {
					delete(rl.entries, key)
				}
			}
			rl.mu.Unlock()
		case <-rl.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

// Allow consumes one token for key.
func (rl *RateLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	entry, exists := rl.entries[key]
	if !exists {
		entry = &rateLimitEntry{tokens: float64(rl.config.BurstSize), lastUpdate: now}
		rl.entries[key] = entry
	}

	elapsed := now.Sub(entry.lastUpdate)
	tokensPerSecond := float64(rl.config.RequestsPerMinute) / 60.0
	entry.tokens = min(float64(rl.config.BurstSize), entry.tokens+elapsed.Seconds()*tokensPerSecond)
	entry.lastUpdate = now

	if entry.tokens >= 1 {
		entry.tokens--
		return true, int(entry.tokens), nil
	}
	return false, 0, nil
}

// RateLimitMiddleware rejects requests once limiter denies the client. A
// limiter error lets the request through.
func RateLimitMiddleware(limiter Limiter, requestsPerMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := getRateLimitKey(c)

		allowed, remaining, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			slog.WarnContext(c.Request.Context(), "rate limiter unavailable, allowing request", "key", key, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(requestsPerMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			c.Header("Retry-After", "60")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				ErrorKey:      "Rate limit exceeded",
				"retry_after": 60,
			})
			return
		}

		c.Next()
	}
}

// getRateLimitKey prefers the authenticated user and falls back to client IP.
func getRateLimitKey(c *gin.Context) string {
	if userID, exists := c.Get(UserIDKey); exists {
		if id, ok := userID.(string); ok && id != "" {
			return "user:" + id
		}
	}

	ip := c.ClientIP()
	if ip == "" {
		ip = c.Request.RemoteAddr
	}
	return "ip:" + ip
}
