package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"library_circulation/circulation"
)

// StaffHeader 由前置网关在认证后注入；本服务不做认证。
const StaffHeader = "X-Staff-ID"

// StaffIdentity copies the gateway-supplied staff id into the gin context and
// into the request context for audit attribution.
func StaffIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if id := strings.TrimSpace(c.GetHeader(StaffHeader)); id != "" {
			c.Set("staffID", id)
			c.Request = c.Request.WithContext(circulation.WithActor(c.Request.Context(), id))
		}
		c.Next()
	}
}

// StaffOnly rejects requests that did not come through the staff gateway.
func StaffOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("staffID") == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, H{"error": "staff only"})
			return
		}
		c.Next()
	}
}

// RequestLogger 结构化访问日志
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.InfoContext(c.Request.Context(), "request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("staff", c.GetString("staffID")),
		)
	}
}
