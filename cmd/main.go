package main

import (
	"os"
	"os/signal"
	"syscall"

	configs "github.com/washpoint/carwash/config"
	"github.com/washpoint/carwash/internal/email"
	"github.com/washpoint/carwash/internal/events"
	"github.com/washpoint/carwash/internal/handler"
	"github.com/washpoint/carwash/internal/middleware"
	"github.com/washpoint/carwash/internal/repository"
	"github.com/washpoint/carwash/internal/router"
	"github.com/washpoint/carwash/internal/service"
	"github.com/washpoint/carwash/pkg/database"
	"github.com/washpoint/carwash/pkg/logger"
	"github.com/washpoint/carwash/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	config, err := configs.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	// Initialize Zap logger
	if err := logger.InitLogger(config); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	logger.GetLogger().Info("Application starting",
		zap.String("app_name", config.App.Name),
		zap.String("environment", config.App.Environment),
		zap.String("version", "1.0.0"),
	)

	// Initialize database with standardized pattern
	db, err := database.NewPostgresDB(database.Config{
		Host:            config.Database.Host,
		Port:            config.Database.Port,
		User:            config.Database.User,
		Password:        config.Database.Password,
		Database:        config.Database.Name,
		SSLMode:         config.Database.SSLMode,
		MaxIdleConns:    config.Database.MaxIdleConns,
		MaxOpenConns:    config.Database.MaxOpenConns,
		ConnMaxLifetime: int(config.Database.ConnMaxLifetime.Minutes()),
		ConnMaxIdleTime: int(config.Database.ConnMaxIdleTime.Minutes()),
	})
	if err != nil {
		logger.GetLogger().Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(db)

	// Run auto migrations
	if err := database.AutoMigrate(db); err != nil {
		logger.GetLogger().Fatal("Failed to run database migrations", zap.Error(err))
	}
	logger.GetLogger().Info("Database migrated successfully")

	// Seed the bootstrap admin account
	if err := database.Seed(db); err != nil {
		logger.GetLogger().Error("Failed to seed database", zap.Error(err))
		// Don't fail - seed data may already exist
	} else {
		logger.GetLogger().Info("Database seeded successfully")
	}

	// Redis is optional; the user cache falls back to in-process memory
	var redisClient *redis.Client
	if config.Redis.Enabled {
		redisClient, err = redis.NewClient(config)
		if err != nil {
			logger.GetLogger().Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
	}
	logger.GetLogger().Info("User cache initialized",
		zap.Bool("redis_enabled", redisClient != nil),
	)

	// Repositories
	userCache := repository.NewUserCache(redisClient)
	userRepo := repository.NewUserRepository(db, userCache)

	// Event bus wiring: services publish, the mail notifier consumes
	bus := events.NewBus()
	email.NewNotifier(config, nil).Register(bus)

	// Services
	jwtService, err := service.NewJWTService(
		config.JWT.Secret,
		config.JWT.AccessTokenTTL,
		config.JWT.RefreshTokenTTL,
	)
	if err != nil {
		logger.GetLogger().Fatal("Failed to initialize JWT service", zap.Error(err))
	}
	hasher := service.NewBcryptHasher()
	lockoutService := service.NewLockoutService(userRepo, config.Auth, bus)
	rotationService := service.NewRotationService(userRepo, jwtService, config.Auth, bus)
	verificationService := service.NewVerificationService(userRepo, hasher, config.Auth, bus)
	authService := service.NewAuthService(
		userRepo,
		hasher,
		jwtService,
		lockoutService,
		rotationService,
		verificationService,
		config.Auth,
		bus,
	)
	userService := service.NewUserService(userRepo, lockoutService)

	// Handlers
	authHandler := handler.NewAuthHandler(authService, verificationService)
	userHandler := handler.NewUserHandler(userService)
	healthHandler := handler.NewHealthHandler(db, redisClient)

	// Initialize middleware
	jwtMiddleware := middleware.NewJWTMiddleware(jwtService, userRepo)

	r := router.NewRouter(
		authHandler,
		userHandler,
		healthHandler,
		jwtMiddleware,
		config,
	).SetupRoutes()

	go func() {
		logger.GetLogger().Info("Server starting",
			zap.String("port", config.App.Port),
			zap.String("host", "0.0.0.0"),
		)
		if err := r.Run(":" + config.App.Port); err != nil {
			logger.GetLogger().Fatal("Failed to start server",
				zap.Error(err),
				zap.String("port", config.App.Port),
			)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.GetLogger().Info("Shutting down server...")
}
