package middlewares

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// RateWindow is how long a user's assignment counter lives.
const RateWindow = 24 * time.Hour

//go:generate mockgen -source=assignRateLimiter.go -destination=mock_counter_test.go -package=middlewares

// Counter is the slice of Redis the rate limiter needs.
type Counter interface {
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error
	TTL(ctx context.Context, key string) (time.Duration, error)
}

// RedisCounter implements Counter with a go-redis client.
type RedisCounter struct {
	client redis.Cmdable
}

var _ Counter = (*RedisCounter)(nil)

// NewRedisCounter wraps a Redis client.
func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{client: client}
}

func (r *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	return r.client.Incr(ctx, key).Result()
}

func (r *RedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisCounter) TTL(ctx context.Context, key string) (time.Duration, error) {
	return r.client.TTL(ctx, key).Result()
}

// AssignRateLimiter allows each user limit assignment changes per RateWindow. Keys are
// "{prefix}:{user_id}". A nil counter disables limiting.
func AssignRateLimiter(counter Counter, prefix string, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if counter == nil {
			c.Next()
			return
		}

		userID := c.GetString(ContextUserID)
		if userID == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			c.Abort()
			return
		}

		ctx := c.Request.Context()

		// Create individual key for each user
		userKey := prefix + ":" + userID

		count, err := counter.Incr(ctx, userKey)
		if err != nil {
			log.Printf("Rate limiter increment failed: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "redis error incrementing count"})
			c.Abort()
			return
		}

		// Set TTL only for the first increment
		if count == 1 {
			if err := counter.Expire(ctx, userKey, RateWindow); err != nil {
				log.Printf("Rate limiter expire failed: %v", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "redis error setting TTL"})
				c.Abort()
				return
			}
		}

		if count > int64(limit) {
			retryAfter, _ := counter.TTL(ctx, userKey)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": retryAfter.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
