package api

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/para-comments-api/internal/config"
)

// clientLimiters tracks one token bucket per client IP. When the map grows
// past the configured cap it is reset wholesale, which briefly refreshes
// everyone's budget but bounds memory.
type clientLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	max      int
}

func newClientLimiters(cfg config.RateLimitConfig) *clientLimiters {
	return &clientLimiters{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(cfg.PerMinute) / 60.0),
		burst:    cfg.Burst,
		max:      cfg.MaxClients,
	}
}

func (cl *clientLimiters) get(ip string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if limiter, ok := cl.limiters[ip]; ok {
		return limiter
	}
	if len(cl.limiters) >= cl.max {
		cl.limiters = make(map[string]*rate.Limiter)
	}
	limiter := rate.NewLimiter(cl.limit, cl.burst)
	cl.limiters[ip] = limiter
	return limiter
}

// rateLimitMiddleware enforces a per-IP request budget
func rateLimitMiddleware(cfg config.RateLimitConfig, log zerolog.Logger) gin.HandlerFunc {
	limiters := newClientLimiters(cfg)

	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiters.get(ip).Allow() {
			log.Warn().Str("client_ip", ip).Msg("Rate limit exceeded")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate_limit_exceeded",
			})
			return
		}
		c.Next()
	}
}
