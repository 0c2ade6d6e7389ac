package waitlist

import (
	"academy/internal/shared/middleware"
	"academy/internal/users"

	"github.com/gin-gonic/gin"
)

// SetupWaitlistRoutes registers waitlist endpoints. smsGuard may be nil when webhook signatures are not checked.
func SetupWaitlistRoutes(rg *gin.RouterGroup, controller *Controller, auth gin.HandlerFunc, smsGuard gin.HandlerFunc) {
	member := rg.Group("/sessions/:session_id/waitlist")
	member.Use(auth, middleware.RequireRoles(users.Strings(users.AllRoles...)...))
	{
		member.POST("", controller.JoinWaitlist)
		member.GET("/:entrant_id", controller.GetStatus)
		member.DELETE("/:entrant_id", controller.LeaveWaitlist)
		member.POST("/:entrant_id/respond", controller.Respond)
	}

	staff := rg.Group("/admin/sessions/:session_id")
	staff.Use(auth)
	{
		staff.POST("/release", middleware.RequireRoles(users.Strings(users.RoleCoach, users.RoleAdmin)...), controller.ReleaseSlot)
		staff.GET("/waitlist", middleware.RequireRoles(users.Strings(users.RoleCoach, users.RoleAdmin)...), controller.Snapshot)
		staff.POST("/admit", middleware.RequireAdmin(), controller.AdmitNext)
	}

	sweep := rg.Group("/waitlist")
	sweep.Use(auth, middleware.RequireAdmin())
	{
		sweep.POST("/sweep", controller.ExpireStale)
	}

	webhooks := rg.Group("/webhooks")
	if smsGuard != nil {
		webhooks.Use(smsGuard)
	}
	{
		webhooks.POST("/sms", controller.SMSWebhook)
	}
}
