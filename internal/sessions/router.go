package sessions

import (
	"academy/internal/shared/middleware"
	"academy/internal/users"

	"github.com/gin-gonic/gin"
)

// SetupSessionRoutes registers capacity endpoints behind the given auth middleware
func SetupSessionRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	member := rg.Group("/sessions")
	member.Use(auth, middleware.RequireRoles(users.Strings(users.AllRoles...)...))
	{
		member.GET("/:session_id/capacity", controller.GetCapacity)
	}

	admin := rg.Group("/admin/sessions")
	admin.Use(auth, middleware.RequireAdmin())
	{
		admin.PUT("/:session_id/capacity", controller.SetCapacity)
	}
}
