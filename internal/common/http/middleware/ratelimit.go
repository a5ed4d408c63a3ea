package middleware

import (
	"context"
	"time"

	"ctfoj/pkg/utils/response"

	"github.com/gin-gonic/gin"
)

const rateKeyPrefix = "ctfoj:rate:"

// RateLimiter counts hits per key within a window.
type RateLimiter interface {
	Allow(ctx context.Context, key string, max int, window time.Duration) error
}

// RateLimitPolicy bounds hits per client ip and per authenticated user.
// A zero max disables that dimension.
type RateLimitPolicy struct {
	Window  time.Duration `yaml:"window"`
	UserMax int           `yaml:"userMax"`
	IPMax   int           `yaml:"ipMax"`
}

// RateLimitMiddleware enforces policy on one route. The user dimension
// needs AuthMiddleware to run first.
func RateLimitMiddleware(limiter RateLimiter, routeKey string, policy RateLimitPolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || policy.Window <= 0 {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		if policy.IPMax > 0 {
			key := rateKeyPrefix + "ip:" + c.ClientIP() + ":" + routeKey
			if err := limiter.Allow(ctx, key, policy.IPMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		if uid := CurrentUser(c); policy.UserMax > 0 && uid != "" {
			key := rateKeyPrefix + "user:" + uid + ":" + routeKey
			if err := limiter.Allow(ctx, key, policy.UserMax, policy.Window); err != nil {
				response.AbortWithError(c, err)
				return
			}
		}
		c.Next()
	}
}
