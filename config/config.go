package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App       AppConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	Auth      AuthConfig
	Email     EmailConfig
	RateLimit RateLimitConfig
}

type AppConfig struct {
	Name        string
	Environment string
	Debug       bool
	Timeout     time.Duration
	Port        string
	BaseURL     string
}

type DatabaseConfig struct {
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	SSLMode         string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type JWTConfig struct {
	Secret          string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// AuthConfig is the auth core's tunable surface. Every flag is independently
// togglable so deployments can run without verification mail or lockout.
type AuthConfig struct {
	EmailVerificationEnabled bool
	PasswordResetEnabled     bool
	AccountLockoutEnabled    bool
	TokenRotationEnabled     bool

	MaxLoginAttempts  int
	InitialLockout    time.Duration
	MaxLockout        time.Duration
	LockoutMultiplier int

	EmailVerificationTTL       time.Duration
	PasswordResetTTL           time.Duration
	VerificationResendInterval time.Duration
	ResetRequestInterval       time.Duration

	MaxRefreshTokensPerUser int
}

type EmailConfig struct {
	FromAddress string
	FromName    string
}

type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	Database     int
	Enabled      bool
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
}

type RateLimitConfig struct {
	Request  int
	Duration int
}

func LoadConfig() (*Config, error) {
	// Load .env file; missing file is fine in containerized deployments
	_ = godotenv.Load()

	config := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "carwash-auth"),
			Environment: getEnv("APP_ENV", "development"),
			Port:        getEnv("APP_PORT", "8080"),
			Debug:       getEnvAsBool("APP_DEBUG", true),
			Timeout:     getEnvAsDuration("APP_TIMEOUT", 30*time.Second),
			BaseURL:     getEnv("APP_BASE_URL", "http://localhost:8080"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			Name:            getEnv("DB_NAME", "carwash_db"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 10*time.Minute),
		},
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			Database:     getEnvAsInt("REDIS_DB", 0),
			Enabled:      getEnvAsBool("REDIS_ENABLED", false),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
			DialTimeout:  getEnvAsDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvAsDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvAsDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  getEnvAsDuration("REDIS_POOL_TIMEOUT", 4*time.Second),
		},
		JWT: JWTConfig{
			Secret:          getEnv("JWT_SECRET", ""),
			AccessTokenTTL:  getEnvAsDuration("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTokenTTL: getEnvAsDuration("JWT_REFRESH_TTL", 7*24*time.Hour),
		},
		Auth: AuthConfig{
			EmailVerificationEnabled:   getEnvAsBool("AUTH_EMAIL_VERIFICATION_ENABLED", true),
			PasswordResetEnabled:       getEnvAsBool("AUTH_PASSWORD_RESET_ENABLED", true),
			AccountLockoutEnabled:      getEnvAsBool("AUTH_ACCOUNT_LOCKOUT_ENABLED", true),
			TokenRotationEnabled:       getEnvAsBool("AUTH_TOKEN_ROTATION_ENABLED", true),
			MaxLoginAttempts:           getEnvAsInt("AUTH_MAX_LOGIN_ATTEMPTS", 5),
			InitialLockout:             getEnvAsDuration("AUTH_INITIAL_LOCKOUT", 5*time.Minute),
			MaxLockout:                 getEnvAsDuration("AUTH_MAX_LOCKOUT", 60*time.Minute),
			LockoutMultiplier:          getEnvAsInt("AUTH_LOCKOUT_MULTIPLIER", 2),
			EmailVerificationTTL:       getEnvAsDuration("AUTH_EMAIL_VERIFICATION_TTL", 24*time.Hour),
			PasswordResetTTL:           getEnvAsDuration("AUTH_PASSWORD_RESET_TTL", 2*time.Hour),
			VerificationResendInterval: getEnvAsDuration("AUTH_VERIFICATION_RESEND_INTERVAL", 5*time.Minute),
			ResetRequestInterval:       getEnvAsDuration("AUTH_RESET_REQUEST_INTERVAL", time.Hour),
			MaxRefreshTokensPerUser:    getEnvAsInt("AUTH_MAX_REFRESH_TOKENS", 5),
		},
		Email: EmailConfig{
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@carwash.local"),
			FromName:    getEnv("EMAIL_FROM_NAME", "Carwash Booking"),
		},
		RateLimit: RateLimitConfig{
			Request:  getEnvAsInt("RATE_LIMIT_MAX_REQUEST", 10),
			Duration: getEnvAsInt("RATE_LIMIT_DURATION", 60),
		},
	}

	return config, nil
}

func (c *Config) DatabaseConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func (c *Config) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
