package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/okian/battle/internal/domain/fault"
	"github.com/okian/battle/pkg/logger"
	"github.com/okian/battle/pkg/metrics"
)

const (
	userKey        = "user_id"
	maxUserIDBytes = 64
)

// MetricsMiddleware records Prometheus request counters and latency keyed by
// the matched route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		durationMs := float64(time.Since(start).Milliseconds())
		metrics.RecordHTTPRequest(endpoint, c.Request.Method, status)
		metrics.RecordHTTPRequestDuration(endpoint, c.Request.Method, status, durationMs)
	}
}

// RequestLogger logs each request at debug level, and 5xx responses as errors.
func RequestLogger(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", c.Request.URL.Path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			l.Error(c.Request.Context(), "request", fields...)
			return
		}
		l.Debug(c.Request.Context(), "request", fields...)
	}
}

// RequireUser rejects requests without a usable X-User-ID header.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(UserHeader))
		if id == "" || len(id) > maxUserIDBytes {
			writeError(c, fault.NewKindf("api.require_user", fault.ErrBadRequest,
				"%s header must be 1..%d bytes", UserHeader, maxUserIDBytes))
			return
		}
		c.Set(userKey, id)
		c.Next()
	}
}

func userID(c *gin.Context) string { return c.GetString(userKey) }
