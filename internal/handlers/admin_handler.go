package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/roomdesk/reservation-backend/internal/models"
	"github.com/roomdesk/reservation-backend/internal/services"
)

// SweepController runs and reports on the reconciliation sweep
type SweepController interface {
	RunSweepNow(ctx context.Context) *services.SweepReport
	GetJobStatus() map[string]interface{}
}

// AuditHistory reads a booking's audit trail
type AuditHistory interface {
	History(ctx context.Context, bookingID uuid.UUID) ([]models.AuditLog, error)
}

// AdminHandler handles admin booking operations
type AdminHandler struct {
	bookings BookingManager
	sweeper  SweepController
	audit    AuditHistory
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(bookings BookingManager, sweeper SweepController, audit AuditHistory) *AdminHandler {
	return &AdminHandler{
		bookings: bookings,
		sweeper:  sweeper,
		audit:    audit,
	}
}

// ListBookings handles GET /api/v1/admin/bookings
// @Summary List all bookings
// @Tags Admin
// @Produce json
// @Param user_id query string false "Filter by owner"
// @Param status query string false "Filter by status"
// @Param page query int false "Page (1-based)"
// @Param limit query int false "Page size (max 100)"
// @Success 200 {object} models.BookingListResponse
// @Security BearerAuth
// @Router /api/v1/admin/bookings [get]
func (h *AdminHandler) ListBookings(c *gin.Context) {
	filter, ok := parseListFilter(c)
	if !ok {
		return
	}

	if userID := c.Query("user_id"); userID != "" {
		id, err := uuid.Parse(userID)
		if err != nil {
			badRequest(c, models.CodeInvalidInput, "user_id must be a valid UUID")
			return
		}
		filter.UserID = &id
	}

	page, err := h.bookings.ListBookings(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, page)
}

// UpdateStatus handles PATCH /api/v1/admin/bookings/:id/status
// @Summary Approve or reject a booking
// @Description Approval re-checks room overlap, the per-user cap and facility stock, then checks stock out.
// @Tags Admin
// @Accept json
// @Produce json
// @Param id path string true "Booking ID"
// @Param request body models.UpdateStatusRequest true "Target status"
// @Success 200 {object} models.Booking
// @Failure 409 {object} map[string]interface{} "Conflict or invalid transition"
// @Security BearerAuth
// @Router /api/v1/admin/bookings/{id}/status [patch]
func (h *AdminHandler) UpdateStatus(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var req models.UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, models.CodeInvalidInput, "status is required")
		return
	}

	booking, err := h.bookings.SetStatus(c.Request.Context(), actor, id, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// ConfirmReturn handles PATCH /api/v1/admin/bookings/:id/return
// @Summary Confirm equipment return
// @Description Credits borrowed facilities back to stock and completes the booking.
// @Tags Admin
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} models.Booking
// @Security BearerAuth
// @Router /api/v1/admin/bookings/{id}/return [patch]
func (h *AdminHandler) ConfirmReturn(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	booking, err := h.bookings.ConfirmReturn(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, booking)
}

// DeleteBooking handles DELETE /api/v1/admin/bookings/:id
// @Summary Purge a finished booking
// @Tags Admin
// @Param id path string true "Booking ID"
// @Success 204
// @Failure 409 {object} map[string]interface{} "Booking still active"
// @Security BearerAuth
// @Router /api/v1/admin/bookings/{id} [delete]
func (h *AdminHandler) DeleteBooking(c *gin.Context) {
	actor, ok := actorFrom(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := h.bookings.Purge(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// auditEntry exposes the stored details JSON
type auditEntry struct {
	models.AuditLog
	Details json.RawMessage `json:"details,omitempty"`
}

// GetAuditTrail handles GET /api/v1/admin/bookings/:id/audit
// @Summary Booking audit trail
// @Tags Admin
// @Produce json
// @Param id path string true "Booking ID"
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/admin/bookings/{id}/audit [get]
func (h *AdminHandler) GetAuditTrail(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	logs, err := h.audit.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	entries := make([]auditEntry, 0, len(logs))
	for _, l := range logs {
		entries = append(entries, auditEntry{AuditLog: l, Details: json.RawMessage(l.Details)})
	}

	c.JSON(http.StatusOK, gin.H{
		"booking_id": id,
		"entries":    entries,
	})
}

// RunSweep handles POST /api/v1/admin/sweep/run
// @Summary Run the reconciliation sweep now
// @Tags Admin
// @Produce json
// @Success 200 {object} services.SweepReport
// @Failure 409 {object} map[string]interface{} "Sweep already running"
// @Security BearerAuth
// @Router /api/v1/admin/sweep/run [post]
func (h *AdminHandler) RunSweep(c *gin.Context) {
	report := h.sweeper.RunSweepNow(c.Request.Context())
	if report.Skipped {
		c.JSON(http.StatusConflict, gin.H{
			"error": errorBody{
				Code:    "SWEEP_IN_PROGRESS",
				Message: report.SkipReason,
			},
			"report": report,
		})
		return
	}

	c.JSON(http.StatusOK, report)
}

// GetCronStatus handles GET /api/v1/admin/cron/status
// @Summary Reconciliation scheduler status
// @Tags Admin
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Security BearerAuth
// @Router /api/v1/admin/cron/status [get]
func (h *AdminHandler) GetCronStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.sweeper.GetJobStatus())
}
