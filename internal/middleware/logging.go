package middleware

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/washpoint/carwash/pkg/logger"
	"go.uber.org/zap"
)

// LoggingMiddleware routes gin's access log through zap
func LoggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			logger.LogRequest(
				param.Method,
				param.Path,
				param.StatusCode,
				param.Latency.Milliseconds(),
				param.ClientIP,
				param.Request.UserAgent(),
			)

			if param.ErrorMessage != "" {
				logger.GetLogger().Error("Request error",
					zap.String("error", param.ErrorMessage),
					zap.String("method", param.Method),
					zap.String("path", param.Path),
					zap.String("client_ip", param.ClientIP),
					zap.Int("status_code", param.StatusCode),
					zap.Duration("latency", param.Latency),
				)
			}

			if param.Latency > time.Second*2 {
				logger.GetLogger().Warn("Slow request detected",
					zap.String("method", param.Method),
					zap.String("path", param.Path),
					zap.Duration("latency", param.Latency),
					zap.String("client_ip", param.ClientIP),
				)
			}

			return "" // Zap already wrote the line
		},
		Output: io.Discard,
	})
}

// Recovery converts panics into 500 responses with a structured log entry
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.LogPanic(recovered)
		c.AbortWithStatus(500)
	})
}
