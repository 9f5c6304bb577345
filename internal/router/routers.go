package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/washpoint/carwash/config"
	"github.com/washpoint/carwash/internal/handler"
	"github.com/washpoint/carwash/internal/middleware"
)

type Router struct {
	authHandler   *handler.AuthHandler
	userHandler   *handler.UserHandler
	healthHandler *handler.HealthHandler

	jwtMw  *middleware.JWTMiddleware
	Config *config.Config
}

func NewRouter(
	auth *handler.AuthHandler,
	user *handler.UserHandler,
	health *handler.HealthHandler,
	jwtMw *middleware.JWTMiddleware,
	cfg *config.Config,
) *Router {
	return &Router{
		authHandler:   auth,
		userHandler:   user,
		healthHandler: health,
		jwtMw:         jwtMw,
		Config:        cfg,
	}
}

func (r *Router) SetupRoutes() *gin.Engine {
	if !r.Config.App.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestContext("api"))
	router.Use(middleware.RequestTimeout(r.Config.App.Timeout))

	api := router.Group("/api")
	{
		api.GET("/health", r.healthHandler.HealthCheck)
		api.GET("/health/live", r.healthHandler.Liveness)

		v1 := api.Group("/v1")
		{
			v1.Use(middleware.RateLimit(r.Config.RateLimit.Request, time.Duration(r.Config.RateLimit.Duration)*time.Second))

			r.authRoutes(v1)
			r.userRoutes(v1)
		}
	}

	return router
}
