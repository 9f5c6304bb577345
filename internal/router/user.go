package router

import (
	"github.com/gin-gonic/gin"
	"github.com/washpoint/carwash/internal/middleware"
)

func (r *Router) userRoutes(version *gin.RouterGroup) {
	users := version.Group("/users")
	{
		users.Use(r.jwtMw.RequireAuth())

		// Listing and lookups are staff operations; the service narrows
		// what a manager actually sees.
		staff := users.Group("")
		staff.Use(middleware.RequireStaff())
		{
			staff.GET("", r.userHandler.GetAll)
			staff.GET("/:id", r.userHandler.GetByID)
			staff.PUT("/:id", r.userHandler.Update)
			staff.POST("/:id/unlock", r.userHandler.Unlock)
			staff.POST("/:id/activate", r.userHandler.Activate)
			staff.POST("/:id/deactivate", r.userHandler.Deactivate)

			// Staff-created accounts; role assignment is re-checked in
			// the service against the actor.
			staff.POST("", r.authHandler.Register)

			// Role changes go through the hierarchy check in the
			// service, so a manager can still promote to washer here.
			staff.PUT("/:id/role", r.userHandler.UpdateRole)
		}

		admin := users.Group("")
		admin.Use(middleware.RequireAdmin())
		{
			admin.DELETE("/:id", r.userHandler.Delete)
		}
	}
}
