package middleware

import (
	"context"
	"net/http"
	"strconv"

	"pitchhub-relay/internal/redis"
	"pitchhub-relay/internal/transport/httpdto"
	"pitchhub-relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type ConnectLimiter interface {
	AllowConnect(ctx context.Context, ip string) (*redis.RateLimitResult, error)
}

// ConnectRateLimitMiddleware limits socket upgrades per client IP. When the
// limiter itself fails the request is let through: the relay must keep
// working without Redis.
func ConnectRateLimitMiddleware(limiter ConnectLimiter, l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := limiter.AllowConnect(c.Request.Context(), c.ClientIP())
		if err != nil {
			if l != nil {
				l.WithContext(c.Request.Context()).Warn("connect rate limit unavailable", zap.Error(err))
			}
			c.Next()
			return
		}

		setRateLimitHeaders(c, result)

		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, httpdto.NewErrorResponse("connection rate limit exceeded", "RATE_LIMITED"))
			c.Abort()
			return
		}

		c.Next()
	}
}

func setRateLimitHeaders(c *gin.Context, result *redis.RateLimitResult) {
	c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	c.Header("X-RateLimit-Reset", strconv.FormatInt(int64(result.ResetIn.Seconds()), 10))
}
