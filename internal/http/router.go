// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"carpool/internal/http/handlers"
	"carpool/internal/http/middleware"
	"carpool/internal/infra"
	"carpool/internal/service"
)

type RouterDeps struct {
	Trips     *service.TripService
	Bookings  *service.BookingService
	Cascade   *service.CascadeService
	Lifecycle *service.LifecycleService
	Verifier  infra.TokenVerifier
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	tripHandler := handlers.NewTripHandler(deps.Trips, deps.Bookings, deps.Cascade)
	bookingHandler := handlers.NewBookingHandler(deps.Bookings)

	api.POST("/trips", middleware.RequireRole(middleware.RoleDriver), tripHandler.Create)
	api.GET("/trips/:id", tripHandler.Get)
	api.PATCH("/trips/:id", tripHandler.Update)
	api.POST("/trips/:id/publish", tripHandler.Publish)
	api.POST("/trips/:id/start", tripHandler.Start)
	api.POST("/trips/:id/complete", tripHandler.Complete)
	api.POST("/trips/:id/cancel", tripHandler.Cancel)
	api.GET("/trips/:id/bookings", tripHandler.ListBookings)
	api.POST("/trips/:id/bookings", bookingHandler.Create)

	api.GET("/bookings/:id", bookingHandler.Get)
	api.POST("/bookings/:id/accept", bookingHandler.Accept)
	api.POST("/bookings/:id/decline", bookingHandler.Decline)
	api.POST("/bookings/:id/cancel", bookingHandler.Cancel)
	api.GET("/passengers/me/bookings", bookingHandler.ListMine)

	if deps.Lifecycle != nil {
		adminHandler := handlers.NewAdminHandler(deps.Lifecycle)
		admin := api.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
		admin.POST("/jobs/auto-complete", adminHandler.AutoComplete)
		admin.POST("/jobs/expire-pending", adminHandler.ExpirePending)
	}

	return r
}
