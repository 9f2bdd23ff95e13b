package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/roomdesk/reservation-backend/internal/models"
)

// AvailabilityChecker answers free/busy and stock questions for a window
type AvailabilityChecker interface {
	RoomAvailability(ctx context.Context, roomID uuid.UUID, w models.TimeWindow) (*models.RoomAvailability, error)
	FacilityAvailability(ctx context.Context, facilityID uuid.UUID, w models.TimeWindow) (*models.FacilityAvailability, error)
}

// AvailabilityHandler handles availability lookups
type AvailabilityHandler struct {
	availability AvailabilityChecker
}

// NewAvailabilityHandler creates a new AvailabilityHandler
func NewAvailabilityHandler(availability AvailabilityChecker) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// RoomAvailability handles GET /api/v1/rooms/:id/availability?start&end
// @Summary Is the room free
// @Tags Availability
// @Produce json
// @Param id path string true "Room ID"
// @Param start query string true "Window start (RFC 3339)"
// @Param end query string true "Window end (RFC 3339)"
// @Success 200 {object} models.RoomAvailability
// @Security BearerAuth
// @Router /api/v1/rooms/{id}/availability [get]
func (h *AvailabilityHandler) RoomAvailability(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	w, ok := parseWindow(c)
	if !ok {
		return
	}

	result, err := h.availability.RoomAvailability(c.Request.Context(), id, w)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// FacilityAvailability handles GET /api/v1/facilities/:id/availability?start&end
// @Summary Units of a facility available in a window
// @Tags Availability
// @Produce json
// @Param id path string true "Facility ID"
// @Param start query string true "Window start (RFC 3339)"
// @Param end query string true "Window end (RFC 3339)"
// @Success 200 {object} models.FacilityAvailability
// @Security BearerAuth
// @Router /api/v1/facilities/{id}/availability [get]
func (h *AvailabilityHandler) FacilityAvailability(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	w, ok := parseWindow(c)
	if !ok {
		return
	}

	result, err := h.availability.FacilityAvailability(c.Request.Context(), id, w)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
