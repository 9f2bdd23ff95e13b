package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/roomdesk/reservation-backend/internal/models"
	"github.com/roomdesk/reservation-backend/internal/services"
)

// BookingManager is the reservation engine as seen by the HTTP layer
type BookingManager interface {
	CreateBooking(ctx context.Context, actor services.Actor, input services.CreateBookingInput) (*models.Booking, error)
	GetBooking(ctx context.Context, actor services.Actor, bookingID uuid.UUID) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) (*models.BookingListResponse, error)
	CancelBooking(ctx context.Context, actor services.Actor, bookingID uuid.UUID) (*models.Booking, error)
	SetStatus(ctx context.Context, actor services.Actor, bookingID uuid.UUID, status models.BookingStatus) (*models.Booking, error)
	ConfirmReturn(ctx context.Context, actor services.Actor, bookingID uuid.UUID) (*models.Booking, error)
	Purge(ctx context.Context, actor services.Actor, bookingID uuid.UUID) error
}

// BookingHandler handles booking requests made by users
type BookingHandler struct {
	bookings BookingManager
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(bookings BookingManager) *BookingHandler {
	return &BookingHandler{bookings: bookings}
}

// CreateBooking creates a PENDING booking
// @Summary Request a room booking
// @Description Request a room for a time window, optionally borrowing facilities. The booking waits for admin approval.
// @Tags Bookings
// @Accept json
// @Produce json
// @Param request body models.CreateBookingRequest true "Booking request"
// @Success 201 {object} models.Booking "Booking created"
// @Failure 400 {object} map[string]interface{} "Invalid request"
// @Failure 404 {object} map[string]interface{} "Room or facility not found"
// @Failure 409 {object} map[string]interface{} "Time conflict, booking cap or insufficient stock"
// @Security BearerAuth
// @Router /api/v1/bookings [post]
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{
			Code:    models.CodeInvalidInput,
			Message: "Invalid request body",
			Details: map[string]interface{}{"reason": err.Error()},
		}})
		return
	}

	roomID, err := uuid.Parse(req.RoomID)
	if err != nil {
		badRequest(c, models.CodeInvalidInput, "room_id must be a valid UUID")
		return
	}

	input := services.CreateBookingInput{
		RoomID:  roomID,
		Window:  models.TimeWindow{Start: req.StartTime, End: req.EndTime},
		Purpose: req.Purpose,
	}
	for _, f := range req.Facilities {
		facilityID, err := uuid.Parse(f.FacilityID)
		if err != nil {
			badRequest(c, models.CodeInvalidInput, "facility_id must be a valid UUID")
			return
		}
		input.Facilities = append(input.Facilities, services.FacilityLineInput{FacilityID: facilityID, Quantity: f.Quantity})
	}

	booking, err := h.bookings.CreateBooking(c.Request.Context(), actor, input)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, booking)
}

// ListMyBookings lists the caller's bookings, newest first
// @Summary List my bookings
// @Tags Bookings
// @Produce json
// @Param status query string false "Filter by status"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} models.BookingListResponse
// @Security BearerAuth
// @Router /api/v1/bookings/mine [get]
func (h *BookingHandler) ListMyBookings(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}

	filter, ok := parseListFilter(c)
	if !ok {
		return
	}
	filter.UserID = &actor.UserID

	page, err := h.bookings.ListBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// GetBooking returns one booking to its owner or an admin
// @Summary Get booking
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 403 {object} map[string]interface{} "Not the owner"
// @Failure 404 {object} map[string]interface{} "Booking not found"
// @Security BearerAuth
// @Router /api/v1/bookings/{id} [get]
func (h *BookingHandler) GetBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.GetBooking(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// CancelBooking withdraws a PENDING or APPROVED booking
// @Summary Cancel booking
// @Description Owner or admin only. Equipment checked out on approval is returned to stock.
// @Tags Bookings
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Failure 403 {object} map[string]interface{} "Not the owner"
// @Failure 409 {object} map[string]interface{} "Booking already finished"
// @Security BearerAuth
// @Router /api/v1/bookings/{id}/cancel [patch]
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.CancelBooking(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}
