package ratelimit

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// LimitFunc returns the request limit for a user.
type LimitFunc func(ctx context.Context, userID string) (int, error)

// Middleware limits requests per user on route. userIDFn reads the identity
// set by the auth middleware; requests without one pass through.
func Middleware(manager *Manager, route string, limitFn LimitFunc, userIDFn func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if manager == nil || limitFn == nil || userIDFn == nil {
			c.Next()
			return
		}
		userID := userIDFn(c)
		if userID == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		limit, errLimit := limitFn(ctx, userID)
		if errLimit != nil {
			log.WithError(errLimit).WithField("user_id", userID).Warn("rate limit: resolve limit failed")
		}
		if limit <= 0 {
			c.Next()
			return
		}

		result, errAllow := manager.Allow(ctx, KeyForUser(route, userID), limit)
		if errAllow != nil {
			log.WithError(errAllow).Warn("rate limit: check failed")
			c.Next()
			return
		}
		setHeaders(c, result, limit)
		if !result.Allowed {
			if retry := int(result.Reset.Sub(manager.nowFn()).Seconds()) + 1; retry > 0 {
				c.Header("Retry-After", strconv.Itoa(retry))
			}
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded. Please try again later.",
				"code":  "RateLimited",
			})
			return
		}
		c.Next()
	}
}

func setHeaders(c *gin.Context, result Result, limit int) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	if !result.Reset.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.Reset.Unix(), 10))
	}
}
