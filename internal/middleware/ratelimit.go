package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/pipelabs/pipegate/internal/config"
	"github.com/pipelabs/pipegate/internal/pkg/apperrors"
)

// EdgeLimiter is the flood shield in front of the whole router. It is
// not the per-actor evaluation limit: that one runs inside the gateway
// pipeline and produces audited RATE_LIMITED denials. This one only
// keeps a misbehaving caller from hammering the process.
type EdgeLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	qps      rate.Limit
	burst    int
	registry ActorResolver
}

func NewEdgeLimiter(cfg *config.Config, reg ActorResolver) *EdgeLimiter {
	qps := rate.Limit(cfg.Limits.EdgeQPS)
	if qps == 0 {
		qps = rate.Inf
	}
	burst := cfg.Limits.EdgeBurst
	if burst == 0 {
		burst = 1
	}
	return &EdgeLimiter{
		limiters: make(map[string]*rate.Limiter),
		qps:      qps,
		burst:    burst,
		registry: reg,
	}
}

func (e *EdgeLimiter) limiterFor(key string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	lim, ok := e.limiters[key]
	if !ok {
		lim = rate.NewLimiter(e.qps, e.burst)
		e.limiters[key] = lim
	}
	return lim
}

func (e *EdgeLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Bucket per actor when the credential resolves, per source IP
		// when it does not.
		key := c.ClientIP()
		if actor, ok := e.registry.Resolve(BearerToken(c), time.Now().UTC()); ok {
			key = actor.ID
		}

		if !e.limiterFor(key).Allow() {
			err := apperrors.NewRateLimited("request rate exceeds the gateway edge limit", time.Second)
			abortWith(c, err)
			return
		}

		c.Next()
	}
}
