package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/washpoint/carwash/internal/middleware"
)

func (r *Router) authRoutes(version *gin.RouterGroup) {
	auth := version.Group("/auth")
	{
		// The credential endpoints are the brute-force surface and carry
		// their own tighter limit on top of the global one.
		credential := auth.Group("")
		credential.Use(middleware.RateLimit(10, time.Minute))
		{
			credential.POST("/register", r.authHandler.Register)
			credential.POST("/login", r.authHandler.Login)
			credential.POST("/forgot-password", r.authHandler.ForgotPassword)
			credential.POST("/reset-password", r.authHandler.ResetPassword)
			credential.POST("/verify-email", r.authHandler.VerifyEmail)
			credential.POST("/resend-verification", r.authHandler.ResendVerification)
		}

		auth.POST("/refresh", r.authHandler.Refresh)

		protected := auth.Group("")
		protected.Use(r.jwtMw.RequireAuth())
		{
			protected.POST("/logout", r.authHandler.Logout)
			protected.POST("/logout-all", r.authHandler.LogoutAll)
			protected.GET("/me", r.authHandler.Me)
			protected.PUT("/password", r.authHandler.ChangePassword)
		}
	}
}
