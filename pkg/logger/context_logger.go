package logger

import (
	"context"
	"time"

	ctxutil "github.com/washpoint/carwash/pkg/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ContextLogBuilder is a log entry builder that auto-extracts request metadata
// from the context before writing.
type ContextLogBuilder struct {
	logger     *zap.Logger
	ctx        context.Context
	level      zapcore.Level
	fields     []zap.Field
	message    string
	shouldLog  bool
	autoFields bool
}

// WithContext creates a log builder bound to the given context
func WithContext(ctx context.Context) *ContextLogBuilder {
	return &ContextLogBuilder{
		logger:     GetLogger(),
		ctx:        ctx,
		level:      zapcore.InfoLevel,
		fields:     make([]zap.Field, 0, 12),
		shouldLog:  true,
		autoFields: true,
	}
}

func InfoWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return WithContext(ctx).Info(message)
}

func WarnWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return WithContext(ctx).Warn(message)
}

func ErrorWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return WithContext(ctx).Error(message)
}

func DebugWithContext(ctx context.Context, message string) *ContextLogBuilder {
	return WithContext(ctx).Debug(message)
}

// AutoFields controls whether context fields are extracted automatically
func (clb *ContextLogBuilder) AutoFields(auto bool) *ContextLogBuilder {
	clb.autoFields = auto
	return clb
}

func (clb *ContextLogBuilder) extractContextFields() {
	if !clb.autoFields || clb.ctx == nil {
		return
	}

	if requestID := ctxutil.GetRequestID(clb.ctx); requestID != "" {
		clb.fields = append(clb.fields, zap.String("request_id", requestID))
	}

	if clientIP := ctxutil.GetClientIP(clb.ctx); clientIP != "" {
		clb.fields = append(clb.fields, zap.String("client_ip", clientIP))
	}

	if userAgent := ctxutil.GetUserAgent(clb.ctx); userAgent != "" {
		clb.fields = append(clb.fields, zap.String("user_agent", userAgent))
	}

	if userID := ctxutil.GetUserID(clb.ctx); userID != nil {
		switch v := userID.(type) {
		case string:
			clb.fields = append(clb.fields, zap.String("user_id", v))
		default:
			clb.fields = append(clb.fields, zap.Any("user_id", userID))
		}
	}

	if module := ctxutil.GetModule(clb.ctx); module != "" {
		clb.fields = append(clb.fields, zap.String("module", module))
	}

	if function := ctxutil.GetFunction(clb.ctx); function != "" {
		clb.fields = append(clb.fields, zap.String("function", function))
	}

	if duration := ctxutil.GetDuration(clb.ctx); duration > 0 {
		clb.fields = append(clb.fields, zap.Duration("duration", duration))
	}
}

func (clb *ContextLogBuilder) enabled(level zapcore.Level) bool {
	return clb.logger.Core().Enabled(level)
}

// Level methods
func (clb *ContextLogBuilder) Info(message string) *ContextLogBuilder {
	if !clb.enabled(zapcore.InfoLevel) {
		clb.shouldLog = false
		return clb
	}
	clb.level = zapcore.InfoLevel
	clb.message = message
	clb.extractContextFields()
	return clb
}

func (clb *ContextLogBuilder) Warn(message string) *ContextLogBuilder {
	if !clb.enabled(zapcore.WarnLevel) {
		clb.shouldLog = false
		return clb
	}
	clb.level = zapcore.WarnLevel
	clb.message = message
	clb.extractContextFields()
	return clb
}

func (clb *ContextLogBuilder) Error(message string) *ContextLogBuilder {
	if !clb.enabled(zapcore.ErrorLevel) {
		clb.shouldLog = false
		return clb
	}
	clb.level = zapcore.ErrorLevel
	clb.message = message
	clb.extractContextFields()
	return clb
}

func (clb *ContextLogBuilder) Debug(message string) *ContextLogBuilder {
	if !clb.enabled(zapcore.DebugLevel) {
		clb.shouldLog = false
		return clb
	}
	clb.level = zapcore.DebugLevel
	clb.message = message
	clb.extractContextFields()
	return clb
}

// Field methods
func (clb *ContextLogBuilder) String(key, value string) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.String(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Int(key string, value int) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Int(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Int64(key string, value int64) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Int64(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Bool(key string, value bool) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Bool(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Time(key string, value time.Time) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Time(key, value))
	}
	return clb
}

func (clb *ContextLogBuilder) Duration(value time.Duration) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Duration("duration", value))
	}
	return clb
}

func (clb *ContextLogBuilder) Err(err error) *ContextLogBuilder {
	if clb.shouldLog && err != nil {
		clb.fields = append(clb.fields, zap.Error(err))
	}
	return clb
}

func (clb *ContextLogBuilder) Any(key string, value interface{}) *ContextLogBuilder {
	if clb.shouldLog {
		clb.fields = append(clb.fields, zap.Any(key, value))
	}
	return clb
}

// Log writes the entry unless the level is disabled or the context is cancelled
func (clb *ContextLogBuilder) Log() {
	if !clb.shouldLog {
		return
	}

	if clb.ctx != nil {
		select {
		case <-clb.ctx.Done():
			return
		default:
		}
	}

	switch clb.level {
	case zapcore.DebugLevel:
		clb.logger.Debug(clb.message, clb.fields...)
	case zapcore.InfoLevel:
		clb.logger.Info(clb.message, clb.fields...)
	case zapcore.WarnLevel:
		clb.logger.Warn(clb.message, clb.fields...)
	case zapcore.ErrorLevel:
		clb.logger.Error(clb.message, clb.fields...)
	}
}
