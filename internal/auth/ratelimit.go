package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/runwhale/runwhale/internal/telemetry"
)

// RateLimiter enforces fixed-window request budgets per API key using Redis
// INCR + EXPIRE. Buckets are keyed by credential, not by user: two keys for
// the same user are limited independently.
type RateLimiter struct {
	redis  *redis.Client
	logger *slog.Logger
}

// NewRateLimiter creates a rate limiter.
func NewRateLimiter(rdb *redis.Client, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{redis: rdb, logger: logger}
}

// Limit returns middleware enforcing at most limit requests per window for
// the named bucket, per credential. When Redis is unreachable the request is
// allowed through — rate limiting is protective, not load-bearing.
func (rl *RateLimiter) Limit(bucket string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := FromContext(r.Context())
			if id == nil {
				respondErr(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			key := fmt.Sprintf("ratelimit:%s:%s", bucket, id.KeyID)

			pipe := rl.redis.Pipeline()
			incr := pipe.Incr(r.Context(), key)
			pipe.Expire(r.Context(), key, window)
			if _, err := pipe.Exec(r.Context()); err != nil {
				rl.logger.Warn("rate limit check failed, allowing request", "bucket", bucket, "error", err)
				next.ServeHTTP(w, r)
				return
			}

			if incr.Val() > int64(limit) {
				telemetry.RateLimitedTotal.Inc()
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(window.Seconds())))
				respondErr(w, http.StatusTooManyRequests, "rate_limited",
					fmt.Sprintf("limit of %d requests per %s exceeded", limit, window))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
