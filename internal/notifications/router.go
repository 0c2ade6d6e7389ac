package notifications

import (
	"academy/internal/shared/middleware"

	"github.com/gin-gonic/gin"
)

func SetupNotificationRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc) {
	admin := rg.Group("/admin/notifications")
	admin.Use(auth, middleware.RequireAdmin())
	{
		admin.GET("/dead-letters", controller.ListDeadLetters)
		admin.POST("/dead-letters/:id/retry", controller.RetryDeadLetter)
	}
}
