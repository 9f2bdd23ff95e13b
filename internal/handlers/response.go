package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/roomdesk/reservation-backend/internal/middleware"
	"github.com/roomdesk/reservation-backend/internal/models"
	"github.com/roomdesk/reservation-backend/internal/services"
	"github.com/roomdesk/reservation-backend/internal/utils"
)

// errorBody is the API error envelope: {"error": {"code", "message", "details"}}
type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// statusForKind maps the domain error taxonomy onto HTTP
func statusForKind(kind models.ErrorKind) int {
	switch kind {
	case models.KindValidation:
		return http.StatusBadRequest
	case models.KindConflict, models.KindState:
		return http.StatusConflict
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with the status its kind maps to. Anything that is
// not a BookingError is reported as a generic 500.
func respondError(c *gin.Context, err error) {
	var be *models.BookingError
	if !errors.As(err, &be) {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": errorBody{
			Code:    "INTERNAL_ERROR",
			Message: "the operation could not be completed, please retry",
		}})
		return
	}

	if be.Kind == models.KindInfrastructure {
		_ = c.Error(err)
	}
	c.JSON(statusForKind(be.Kind), gin.H{"error": errorBody{
		Code:    be.Code,
		Message: be.Message,
		Details: be.Details,
	}})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": errorBody{Code: code, Message: message}})
}

// actorFrom builds the calling actor from the auth context and request metadata
func actorFrom(c *gin.Context) (services.Actor, bool) {
	userCtx, exists := middleware.GetUserContext(c)
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errorBody{Code: "UNAUTHORIZED", Message: "Unauthorized"}})
		return services.Actor{}, false
	}
	return services.Actor{
		UserID:    userCtx.UserID,
		IsAdmin:   userCtx.IsAdmin,
		IPAddress: utils.ClientIP(c),
		UserAgent: utils.UserAgent(c),
	}, true
}

// pathID parses the :id route parameter
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, models.CodeInvalidInput, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseListFilter reads status, page and limit query parameters
func parseListFilter(c *gin.Context) (models.BookingFilter, bool) {
	var filter models.BookingFilter

	if status := c.Query("status"); status != "" {
		s := models.BookingStatus(status)
		filter.Status = &s
	}

	if page := c.Query("page"); page != "" {
		n, err := strconv.Atoi(page)
		if err != nil || n < 1 {
			badRequest(c, models.CodeInvalidInput, "page must be a positive integer")
			return filter, false
		}
		filter.Page = n
	}

	if limit := c.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 1 {
			badRequest(c, models.CodeInvalidInput, "limit must be a positive integer")
			return filter, false
		}
		filter.Limit = n
	}

	return filter, true
}

// parseWindow reads RFC 3339 start and end query parameters
func parseWindow(c *gin.Context) (models.TimeWindow, bool) {
	start, err := time.Parse(time.RFC3339, c.Query("start"))
	if err != nil {
		badRequest(c, models.CodeInvalidInput, "start must be an RFC 3339 timestamp")
		return models.TimeWindow{}, false
	}
	end, err := time.Parse(time.RFC3339, c.Query("end"))
	if err != nil {
		badRequest(c, models.CodeInvalidInput, "end must be an RFC 3339 timestamp")
		return models.TimeWindow{}, false
	}
	return models.TimeWindow{Start: start, End: end}, true
}
