package middleware

import (
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/kidney-match-server/internal/domain"
)

const maxTrackedClients = 10000

// RateLimiter keeps one token bucket per client. Buckets idle for longer than the
// configured TTL are evicted.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *expirable.LRU[string, *rate.Limiter]
	logger  *logrus.Logger
}

// NewRateLimiter creates a per-client limiter from configuration.
func NewRateLimiter(config domain.RateLimitConfig, logger *logrus.Logger) *RateLimiter {
	idle := config.IdleTTL
	if idle <= 0 {
		idle = 10 * time.Minute
	}
	burst := config.Burst
	if burst < 1 {
		burst = 1
	}

	return &RateLimiter{
		limit:   rate.Limit(config.RequestsPerSecond),
		burst:   burst,
		clients: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, idle),
		logger:  logger,
	}
}

// Allow reports whether the client may proceed now, and if not, how long until a
// token is available.
func (r *RateLimiter) Allow(client string) (bool, time.Duration) {
	limiter, ok := r.clients.Get(client)
	if !ok {
		limiter = rate.NewLimiter(r.limit, r.burst)
	}
	// Re-adding refreshes the idle deadline.
	r.clients.Add(client, limiter)

	reservation := limiter.Reserve()
	if !reservation.OK() {
		return false, time.Second
	}
	delay := reservation.Delay()
	if delay == 0 {
		return true, 0
	}
	reservation.Cancel()
	return false, delay
}

// Tracked returns the number of clients with a live bucket.
func (r *RateLimiter) Tracked() int {
	return r.clients.Len()
}

// Middleware throttles requests per authenticated user, or per client IP for anonymous
// callers. Rejected requests get 429 with Retry-After.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := "ip:" + c.ClientIP()
		if userID := c.GetString(UserIDKey); userID != "" {
			client = "user:" + userID
		}

		allowed, retryAfter := r.Allow(client)
		if allowed {
			c.Next()
			return
		}

		seconds := int(math.Ceil(retryAfter.Seconds()))
		if seconds < 1 {
			seconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(seconds))

		r.logger.WithFields(logrus.Fields{
			"client":         client,
			"path":           c.FullPath(),
			"correlation_id": c.GetString(CorrelationIDKey),
			"retry_after":    seconds,
		}).Warn("Rate limit exceeded")

		AbortWithError(c, http.StatusTooManyRequests, domain.ErrCodeRateLimit,
			"Too many requests", "retry after "+strconv.Itoa(seconds)+"s")
	}
}
