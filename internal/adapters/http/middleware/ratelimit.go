package middleware

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"bookshare/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/time/rate"
)

// UserRateLimiter manages per-user token buckets for lending mutations.
// A bucket left idle long enough to refill completely is dropped; a new one
// starts full, so eviction never changes what a user is allowed.
type UserRateLimiter struct {
	limiters sync.Map // userID -> *userLimiter
	rate     rate.Limit
	burst    int

	idle      time.Duration
	now       func() time.Time
	lastSweep atomic.Int64
}

type userLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// NewUserRateLimiter creates a limiter allowing perMinute mutations per user
func NewUserRateLimiter(perMinute, burst int) *UserRateLimiter {
	interval := time.Minute / time.Duration(perMinute)
	idle := time.Duration(burst) * interval
	if idle < time.Minute {
		idle = time.Minute
	}
	return &UserRateLimiter{
		rate:  rate.Every(interval),
		burst: burst,
		idle:  idle,
		now:   time.Now,
	}
}

// GetLimiter returns the rate limiter for a given user
func (l *UserRateLimiter) GetLimiter(userID string) *rate.Limiter {
	now := l.now()
	l.sweep(now)

	v, ok := l.limiters.Load(userID)
	if !ok {
		v, _ = l.limiters.LoadOrStore(userID, &userLimiter{limiter: rate.NewLimiter(l.rate, l.burst)})
	}
	entry := v.(*userLimiter)
	entry.lastSeen.Store(now.UnixNano())
	return entry.limiter
}

// sweep drops idle buckets, at most once per idle period
func (l *UserRateLimiter) sweep(now time.Time) {
	last := l.lastSweep.Load()
	if now.UnixNano()-last < int64(l.idle) || !l.lastSweep.CompareAndSwap(last, now.UnixNano()) {
		return
	}

	cutoff := now.Add(-l.idle).UnixNano()
	l.limiters.Range(func(key, v any) bool {
		if v.(*userLimiter).lastSeen.Load() < cutoff {
			l.limiters.CompareAndDelete(key, v)
		}
		return true
	})
}

// Handler limits authenticated mutations; it must run after AuthMiddleware
func (l *UserRateLimiter) Handler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, _ := c.Locals("userID").(string)
		if userID == "" {
			userID = c.IP()
		}

		reservation := l.GetLimiter(userID).Reserve()
		if !reservation.OK() {
			return response.TooManyRequests(c, "Too many lending operations")
		}
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			return response.TooManyRequests(c, "Too many lending operations")
		}

		return c.Next()
	}
}
