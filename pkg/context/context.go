package ctxutil

import (
	"context"
	"time"

	"github.com/washpoint/carwash/internal/constants"
)

// Re-export ContextKey type
type ContextKey = constants.ContextKey

// Re-export context keys
const (
	RequestIDKey = constants.CtxKeyRequestID
	UserIDKey    = constants.CtxKeyUserID
	UserRoleKey  = constants.CtxKeyUserRole
	ClientIPKey  = constants.CtxKeyClientIP
	UserAgentKey = constants.CtxKeyUserAgent
	StartTimeKey = constants.CtxKeyStartTime
	ModuleKey    = constants.CtxKeyModule
	FunctionKey  = constants.CtxKeyFunction
)

// WithValue adds a value to context
func WithValue(ctx context.Context, key ContextKey, value interface{}) context.Context {
	return context.WithValue(ctx, key, value)
}

// WithUserID adds user ID to context
func WithUserID(ctx context.Context, userID interface{}) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// WithTimeout creates context with timeout
func WithTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, timeout)
}

// Getter functions
func GetRequestID(ctx context.Context) string {
	if val, ok := ctx.Value(RequestIDKey).(string); ok {
		return val
	}
	return ""
}

func GetClientIP(ctx context.Context) string {
	if val, ok := ctx.Value(ClientIPKey).(string); ok {
		return val
	}
	return ""
}

func GetUserAgent(ctx context.Context) string {
	if val, ok := ctx.Value(UserAgentKey).(string); ok {
		return val
	}
	return ""
}

func GetUserID(ctx context.Context) interface{} {
	return ctx.Value(UserIDKey)
}

func GetUserRole(ctx context.Context) string {
	if val, ok := ctx.Value(UserRoleKey).(string); ok {
		return val
	}
	return ""
}

func GetStartTime(ctx context.Context) time.Time {
	if val, ok := ctx.Value(StartTimeKey).(time.Time); ok {
		return val
	}
	return time.Time{}
}

func GetModule(ctx context.Context) string {
	if val, ok := ctx.Value(ModuleKey).(string); ok {
		return val
	}
	return ""
}

func GetFunction(ctx context.Context) string {
	if val, ok := ctx.Value(FunctionKey).(string); ok {
		return val
	}
	return ""
}

// GetDuration calculates duration from start time
func GetDuration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if !startTime.IsZero() {
		return time.Since(startTime)
	}
	return 0
}

// WithOperation tags the context with the module and function handling it
func WithOperation(ctx context.Context, module, function string) context.Context {
	ctx = context.WithValue(ctx, ModuleKey, module)
	ctx = context.WithValue(ctx, FunctionKey, function)
	return ctx
}

// NewContext creates a new context with request tracking information
func NewContext(ctx context.Context, module, function string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx = WithOperation(ctx, module, function)

	// Set start time if not already set
	if GetStartTime(ctx).IsZero() {
		ctx = context.WithValue(ctx, StartTimeKey, time.Now())
	}

	return ctx
}
