// Package ratelimit provides per-IP rate limiting middleware for the
// credential issuance service's auth endpoints.
package ratelimit

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/forgedesk/forgedesk/pkg/apiresponses"
)

// Config holds rate limiter configuration.
type Config struct {
	// Rate is the number of requests allowed per second.
	Rate float64
	// Burst is the maximum number of requests allowed in a burst.
	Burst int
	// CleanupInterval is how often to clean up stale entries.
	CleanupInterval time.Duration
	// MaxAge is how long to keep an entry after last access.
	MaxAge time.Duration
}

// DefaultAuthConfig returns the default config for the /auth endpoints.
// Device-flow clients poll at multi-second intervals, so 10 req/s per IP
// with a burst of 20 leaves comfortable headroom for legitimate use.
func DefaultAuthConfig() Config {
	return Config{
		Rate:            10,
		Burst:           20,
		CleanupInterval: time.Minute,
		MaxAge:          5 * time.Minute,
	}
}

// entry holds the limiter and last access time for one IP.
type entry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// IPRateLimiter implements per-IP rate limiting with automatic cleanup.
type IPRateLimiter struct {
	mu      sync.RWMutex
	entries map[string]*entry
	config  Config
	done    chan struct{}
}

// New creates a per-IP rate limiter with the given configuration.
func New(cfg Config) *IPRateLimiter {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = 5 * time.Minute
	}

	rl := &IPRateLimiter{
		entries: make(map[string]*entry),
		config:  cfg,
		done:    make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

// Allow checks if a request from the given IP should be allowed.
func (rl *IPRateLimiter) Allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, exists := rl.entries[ip]
	if !exists {
		e = &entry{
			limiter: rate.NewLimiter(rate.Limit(rl.config.Rate), rl.config.Burst),
		}
		rl.entries[ip] = e
	}
	e.lastAccess = time.Now()

	return e.limiter.Allow()
}

// Middleware returns a gin middleware applying per-IP rate limiting. The
// 429 body is distinguishable from the device-flow slow-down signal by its
// code so clients do not fold service-level throttling into their poll
// backoff accounting.
func (rl *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, apiresponses.APIError{
				Message: "rate limit exceeded, please try again later",
				Code:    "THROTTLED",
			})
			return
		}
		c.Next()
	}
}

// Stop stops the cleanup goroutine.
func (rl *IPRateLimiter) Stop() {
	close(rl.done)
}

// Len returns the current number of tracked IPs.
func (rl *IPRateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.entries)
}

func (rl *IPRateLimiter) cleanup() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.cleanupStaleEntries()
		}
	}
}

func (rl *IPRateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for ip, e := range rl.entries {
		if now.Sub(e.lastAccess) > rl.config.MaxAge {
			delete(rl.entries, ip)
		}
	}
}
