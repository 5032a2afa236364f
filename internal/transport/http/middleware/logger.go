package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/arklim/auth-service/internal/infra/logger"
)

// Logger emits one access log line per request with correlation identifiers and masked client IP.
func Logger(log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		fields := []zap.Field{
			zap.String("trace_id", GetTraceID(c)),
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", appLogger.MaskIP(c.ClientIP())),
		}
		if userID := c.GetString(UserIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if ua := c.Request.UserAgent(); ua != "" {
			fields = append(fields, zap.String("user_agent", ua))
		}

		reqLog := appLogger.WithContext(c.Request.Context(), log)
		switch {
		case len(c.Errors) > 0:
			reqLog.Error("request failed", append(fields, zap.String("errors", c.Errors.String()))...)
		case c.Writer.Status() >= 500:
			reqLog.Error("request completed", fields...)
		default:
			reqLog.Info("request completed", fields...)
		}
	}
}
