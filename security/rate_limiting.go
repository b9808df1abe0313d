package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"event-registration/internal/lib/logger/sl"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed window counter per client IP kept in redis.
type RateLimiter struct {
	redis  redis.Cmdable
	limit  int64
	window time.Duration
	log    *slog.Logger
}

func NewRateLimiter(redisClient redis.Cmdable, perMinute int, log *slog.Logger) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 30
	}
	return &RateLimiter{
		redis:  redisClient,
		limit:  int64(perMinute),
		window: time.Minute,
		log:    log,
	}
}

// Allow counts one hit for key. Redis errors let the request through.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		if err := r.redis.Expire(ctx, key, r.window).Err(); err != nil {
			return true, err
		}
	}
	return count <= r.limit, nil
}

// Middleware rejects bot user agents and clients over the limit for scope.
func (r *RateLimiter) Middleware(scope string) func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		}

		ip := e.RealIP()
		allowed, err := r.Allow(e.Request.Context(), fmt.Sprintf("ratelimit:%s:%s", scope, ip))
		if err != nil {
			r.log.Warn("rate limiter unavailable", slog.String("ip", ip), sl.Err(err))
		}
		if !allowed {
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Too many requests",
			})
		}

		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	ua = strings.ToLower(ua)
	for _, pattern := range []string{"bot", "crawler", "spider", "scraper"} {
		if strings.Contains(ua, pattern) {
			return true
		}
	}
	return false
}
