package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"vortex.app/relay/common/logger"
)

// Logger writes one line per request. Webhook deliveries also log the
// provider's delivery id so they can be matched against the provider's
// delivery history.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		if delivery := deliveryID(c); delivery != "" {
			ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{MessageID: logger.Ptr(delivery)})
			c.Request = c.Request.WithContext(ctx)
		}

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()
		ctx := c.Request.Context()

		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"route", c.FullPath(),
			"status", status,
			"latency_ms", latency.Milliseconds(),
			"client_ip", c.ClientIP(),
			"user_agent", c.Request.UserAgent(),
		}

		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		switch {
		case status >= 500:
			slog.ErrorContext(ctx, "request failed", attrs...)
		case status >= 400:
			slog.WarnContext(ctx, "request error", attrs...)
		default:
			slog.InfoContext(ctx, "request", attrs...)
		}
	}
}

func deliveryID(c *gin.Context) string {
	if id := c.GetHeader("X-GitHub-Delivery"); id != "" {
		return id
	}
	return c.GetHeader("X-Gitlab-Event-UUID")
}
