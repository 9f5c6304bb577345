package constants

// Application Information
const (
	AppName    = "Carwash Auth Service"
	AppVersion = "1.0.0"
)

// Environment Types
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// Default Application Settings
const (
	DefaultPort        = "8080"
	DefaultEnvironment = EnvDevelopment
)

// Cache Key Prefixes
const (
	CacheKeyPrefix = "carwash:"
	CacheKeyUser   = CacheKeyPrefix + "user:"
)

// Log Levels
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
	LogLevelFatal = "fatal"
)
