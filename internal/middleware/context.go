package middleware

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/washpoint/carwash/internal/constants"
	ctxutil "github.com/washpoint/carwash/pkg/context"
	"github.com/washpoint/carwash/pkg/logger"
)

// RequestContext seeds the request context with tracking information and
// logs the request boundary
func RequestContext(module string) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(constants.HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := ctxutil.NewContext(c.Request.Context(), module, c.Request.URL.Path)
		ctx = context.WithValue(ctx, ctxutil.RequestIDKey, requestID)
		ctx = context.WithValue(ctx, ctxutil.ClientIPKey, c.ClientIP())
		ctx = context.WithValue(ctx, ctxutil.UserAgentKey, c.GetHeader(constants.HeaderUserAgent))

		c.Header(constants.HeaderXRequestID, requestID)
		c.Request = c.Request.WithContext(ctx)

		logger.InfoWithContext(ctx, "Request started").
			String("method", c.Request.Method).
			String("path", c.Request.URL.Path).
			Log()

		c.Next()

		logger.InfoWithContext(ctx, "Request completed").
			String("method", c.Request.Method).
			String("path", c.Request.URL.Path).
			Int("status_code", c.Writer.Status()).
			Int("response_size", c.Writer.Size()).
			Duration(ctxutil.GetDuration(ctx)).
			Log()
	}
}

// RequestTimeout bounds every handler with a deadline
func RequestTimeout(timeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := ctxutil.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
