package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/roomdesk/reservation-backend/internal/middleware"
	"github.com/roomdesk/reservation-backend/pkg/jwt"
)

// RegisterRoutes mounts the booking API on v1. auth must set the user context.
func RegisterRoutes(v1 *gin.RouterGroup, auth gin.HandlerFunc, bookings *BookingHandler, admin *AdminHandler, availability *AvailabilityHandler) {
	// Booking routes (protected)
	b := v1.Group("/bookings")
	b.Use(auth)
	{
		b.POST("", bookings.CreateBooking)
		b.GET("/mine", bookings.ListMyBookings)
		b.GET("/:id", bookings.GetBooking)
		b.PATCH("/:id/cancel", bookings.CancelBooking)
	}

	// Availability routes (protected)
	v1.GET("/rooms/:id/availability", auth, availability.RoomAvailability)
	v1.GET("/facilities/:id/availability", auth, availability.FacilityAvailability)

	// Admin routes
	a := v1.Group("/admin")
	a.Use(auth, middleware.RequireRole(jwt.RoleAdmin))
	{
		a.GET("/bookings", admin.ListBookings)
		a.PATCH("/bookings/:id/status", admin.UpdateStatus)
		a.PATCH("/bookings/:id/return", admin.ConfirmReturn)
		a.DELETE("/bookings/:id", admin.DeleteBooking)
		a.GET("/bookings/:id/audit", admin.GetAuditTrail)

		a.POST("/sweep/run", admin.RunSweep)
		a.GET("/cron/status", admin.GetCronStatus)
	}
}
