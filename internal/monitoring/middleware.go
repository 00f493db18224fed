package monitoring

import (
	"time"

	"github.com/gin-gonic/gin"
)

// RequestMiddleware creates Gin middleware for request monitoring.
func RequestMiddleware(metrics *Metrics, logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		metrics.IncrementRequest()

		ip := c.ClientIP()
		method := c.Request.Method
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		metrics.RecordStatus(statusCode)
		if statusCode >= 400 {
			metrics.IncrementError()
		}

		logger.RequestLogger(method, path, ip, statusCode, duration)

		if len(c.Errors) > 0 {
			for _, err := range c.Errors {
				logger.Error("Request Error",
					"error", err.Err.Error(),
					"method", method,
					"path", path,
					"status_code", statusCode,
				)
			}
		}

		if duration > 5*time.Second {
			logger.Warn("Slow Request",
				"method", method,
				"path", path,
				"duration_ms", duration.Milliseconds(),
			)
		}
	}
}
