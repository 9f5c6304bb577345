package constants

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

// Context Keys for request tracking and metadata
const (
	CtxKeyRequestID ContextKey = "request_id"
	CtxKeyUserID    ContextKey = "user_id"
	CtxKeyUserRole  ContextKey = "user_role"
	CtxKeyClientIP  ContextKey = "client_ip"
	CtxKeyUserAgent ContextKey = "user_agent"
	CtxKeyStartTime ContextKey = "start_time"
	CtxKeyModule    ContextKey = "module"
	CtxKeyFunction  ContextKey = "function"
)

// Gin Context Keys set by the auth middleware
const (
	GinKeyUser      = "current_user"
	GinKeyUserID    = "user_id"
	GinKeyUserEmail = "email"
	GinKeyUserRole  = "role"
)
