package middleware

import (
	"github.com/gin-gonic/gin"

	appErrors "github.com/noah-isme/placement-rounds-api/pkg/errors"
	"github.com/noah-isme/placement-rounds-api/pkg/ratelimit"
	"github.com/noah-isme/placement-rounds-api/pkg/response"
)

// RateLimitPerUser throttles authenticated callers, keyed by user id and falling back to client IP.
func RateLimitPerUser(limiter ratelimit.Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		key := c.ClientIP()
		if claims := Claims(c); claims != nil {
			key = claims.UserID
		}
		if !limiter.Allow(c.Request.Context(), key) {
			response.Error(c, appErrors.Clone(appErrors.ErrRateLimited, "too many check-in attempts, slow down"))
			c.Abort()
			return
		}
		c.Next()
	}
}
