package api

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request under key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// LocalLimiter keeps a token bucket per key in process.
type LocalLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rps      rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewLocalLimiter(perMinute, burst int) *LocalLimiter {
	if burst <= 0 {
		burst = 5
	}
	return &LocalLimiter{
		visitors: map[string]*visitor{},
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (l *LocalLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = time.Now()
	return v.limiter.Allow(), nil
}

// Sweep drops keys idle for longer than idle.
func (l *LocalLimiter) Sweep(idle time.Duration) {
	cutoff := time.Now().Add(-idle)
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.visitors {
		if v.lastSeen.Before(cutoff) {
			delete(l.visitors, k)
		}
	}
}

// RedisLimiter is a fixed-window counter shared by all instances.
type RedisLimiter struct {
	Redis  redis.UniversalClient
	Prefix string
	Limit  int
	Window time.Duration
}

func NewRedisLimiter(r redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{Redis: r, Prefix: prefix, Limit: limit, Window: window}
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	redisKey := fmt.Sprintf("%s:%s", r.Prefix, key)
	count, err := r.Redis.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		r.Redis.Expire(ctx, redisKey, r.Window)
	}
	return count <= int64(r.Limit), nil
}

// rateLimit limits per authenticated user. Limiter errors let the request
// through.
func rateLimit(l Limiter, name string, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID := currentUser(c)
		ok, err := l.Allow(c.UserContext(), name+":"+userID)
		if err != nil {
			log.Warn("rate limiter error", zap.String("limit", name), zap.Error(err))
			return c.Next()
		}
		if !ok {
			log.Warn("rate limit exceeded", zap.String("limit", name), zap.String("user_id", userID))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
