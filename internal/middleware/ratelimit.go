package middleware

import (
	"net/http"
	"sync"

	"github.com/mediagate/modgate/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// ActorLimiter keeps one token bucket per actor id. This is local
// per-process limiting on the moderation API only, not the distributed
// rate limiting handled upstream.
type ActorLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      rate.Limit
	burst    int
}

func NewActorLimiter(qps float64, burst int) *ActorLimiter {
	if qps <= 0 {
		qps = 20
	}
	if burst <= 0 {
		burst = int(qps) * 2
	}
	return &ActorLimiter{
		limiters: make(map[string]*rate.Limiter),
		qps:      rate.Limit(qps),
		burst:    burst,
	}
}

func (l *ActorLimiter) get(actorID string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[actorID]
	if !ok {
		limiter = rate.NewLimiter(l.qps, l.burst)
		l.limiters[actorID] = limiter
	}
	return limiter
}

// RateLimitMiddleware throttles per actor. Must run after ModeratorAuth so
// the actor identity is resolved.
func RateLimitMiddleware(l *ActorLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := ActorFrom(c)
		if !ok {
			c.Next()
			return
		}

		if !l.get(actor.ID).Allow() {
			metrics.RateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": "1s",
			})
			return
		}
		c.Next()
	}
}
