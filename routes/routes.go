package routes

import (
	"net/http"
	"time"

	"washly/handlers"
	"washly/middleware"
	"washly/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RegisterCatalogRoutes registers the read-only scheduling endpoints.
func RegisterCatalogRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	api.GET("/services", hb.Catalog.ListServicesHandler)
	api.GET("/availability", hb.Catalog.AvailabilityHandler)
	api.POST("/quote", hb.Catalog.QuoteHandler)
}

// RegisterBookingRoutes registers the customer booking endpoints.
func RegisterBookingRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	bookings := api.Group("/bookings")
	{
		bookings.POST("", hb.Bookings.CreateBookingHandler)
		bookings.GET("/:id", hb.Bookings.GetBookingHandler)
		bookings.POST("/:id/cancel", hb.Bookings.CancelBookingHandler)
		bookings.POST("/:id/reschedule", hb.Bookings.RescheduleBookingHandler)
	}
}

// RegisterWebhookRoutes registers collaborator callbacks. They are exempt from
// rate limiting; each provider signs its requests.
func RegisterWebhookRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	hooks := api.Group("/webhooks")
	{
		hooks.POST("/stripe", hb.Webhooks.StripeWebhookHandler)
		hooks.POST("/sms/status", hb.Webhooks.SMSStatusHandler)
		hooks.POST("/sms/inbound", hb.Webhooks.SMSInboundHandler)
		hooks.POST("/calendar", hb.Webhooks.CalendarWebhookHandler)
	}
}

// RegisterAdminRoutes sets up endpoints for operator actions.
func RegisterAdminRoutes(api *gin.RouterGroup, hb *handlers.HandlerBundle) {
	adminGroup := api.Group("/admin")
	{
		adminGroup.Use(middleware.JWTAuthAdminMiddleware(hb.JWTSecret))
		adminGroup.POST("/bookings/:id/no-show", hb.Admin.NoShowHandler)
		adminGroup.POST("/bookings/:id/complete", hb.Admin.CompleteHandler)
		adminGroup.POST("/bookings/:id/retry", hb.Admin.RetryHandler)
		adminGroup.POST("/reminders/run", hb.Admin.RunRemindersHandler)
	}
}

// RegisterHealthRoute reports the last dependency health snapshot.
func RegisterHealthRoute(r *gin.Engine) {
	r.GET("/health", func(c *gin.Context) {
		status := utils.GetHealthStatus()
		code := http.StatusOK
		if !status.Healthy() {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{"status": http.StatusText(code), "dependencies": status})
	})
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Authorization", "Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	api := r.Group("/api")
	RegisterWebhookRoutes(api, hb)

	public := api.Group("")
	public.Use(middleware.RateLimitMiddleware(hb.RequestsPerMinute))
	RegisterCatalogRoutes(public, hb)
	RegisterBookingRoutes(public, hb)
	RegisterAdminRoutes(public, hb)

	RegisterHealthRoute(r)
}
