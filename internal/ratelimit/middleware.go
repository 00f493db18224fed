package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// GradeLimitMiddleware throttles grading submissions per client IP.
func (rl *RateLimiter) GradeLimitMiddleware() gin.HandlerFunc {
	return rl.middleware("grading", rl.AllowGrade)
}

// StatusLimitMiddleware throttles status polling per client IP.
func (rl *RateLimiter) StatusLimitMiddleware() gin.HandlerFunc {
	return rl.middleware("status", rl.AllowStatus)
}

func (rl *RateLimiter) middleware(scope string, check func(context.Context, string) (*Result, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ip := c.ClientIP()

		result, err := check(ctx, ip)
		if err != nil {
			// Never block a request because the limiter itself failed.
			slog.Error("Rate limit check failed", "scope", scope, "ip", ip, "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			if rl.metrics != nil {
				rl.metrics.IncrementRateLimitBlock()
			}

			c.Header("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       fmt.Sprintf("rate limit exceeded for %s requests", scope),
				"message":     fmt.Sprintf("You have exceeded the limit of %d requests per minute", result.Limit),
				"retry_after": int(result.RetryAfter.Seconds()),
				"reset_at":    result.ResetAt.Unix(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
