package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/roomdesk/reservation-backend/internal/database"
	"github.com/roomdesk/reservation-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// AvailabilityService is the Room Availability Guard and the Facility Inventory Ledger.
// The same checks run inside atomic units through the package helpers below.
type AvailabilityService struct {
	reader database.AvailabilityReader
	logger *logrus.Logger
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(reader database.AvailabilityReader, logger *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{reader: reader, logger: logger}
}

// IsRoomFree reports whether no PENDING or APPROVED booking on roomID overlaps w.
// exclude skips the booking being re-evaluated.
func (s *AvailabilityService) IsRoomFree(ctx context.Context, roomID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (bool, error) {
	conflict, err := findRoomConflict(ctx, s.reader, roomID, w, models.NonTerminalStatuses, exclude)
	if err != nil {
		return false, err
	}
	return conflict == nil, nil
}

// AvailableQuantity is total_stock minus the quantity held by overlapping
// non-terminal bookings
func (s *AvailabilityService) AvailableQuantity(ctx context.Context, facilityID uuid.UUID, w models.TimeWindow) (int, error) {
	facility, err := s.reader.GetFacility(ctx, facilityID)
	if err != nil {
		return 0, models.NewInfrastructureError(models.CodeStorageUnavailable, err)
	}
	if facility == nil {
		return 0, models.NewNotFoundError(models.CodeFacilityNotFound, "facility not found")
	}
	return availableQuantity(ctx, s.reader, facility, w, nil)
}

// RoomAvailability validates the request and answers GET /rooms/:id/availability
func (s *AvailabilityService) RoomAvailability(ctx context.Context, roomID uuid.UUID, w models.TimeWindow) (*models.RoomAvailability, error) {
	if !w.Valid() {
		return nil, models.NewValidationError(models.CodeInvalidRange, "start time must be before end time")
	}

	room, err := s.reader.GetRoom(ctx, roomID)
	if err != nil {
		return nil, models.NewInfrastructureError(models.CodeStorageUnavailable, err)
	}
	if room == nil {
		return nil, models.NewNotFoundError(models.CodeRoomNotFound, "room not found")
	}

	free, err := s.IsRoomFree(ctx, roomID, w, nil)
	if err != nil {
		return nil, err
	}
	return &models.RoomAvailability{RoomID: roomID, Window: w, Free: free && room.IsActive}, nil
}

// FacilityAvailability validates the request and answers GET /facilities/:id/availability
func (s *AvailabilityService) FacilityAvailability(ctx context.Context, facilityID uuid.UUID, w models.TimeWindow) (*models.FacilityAvailability, error) {
	if !w.Valid() {
		return nil, models.NewValidationError(models.CodeInvalidRange, "start time must be before end time")
	}

	facility, err := s.reader.GetFacility(ctx, facilityID)
	if err != nil {
		return nil, models.NewInfrastructureError(models.CodeStorageUnavailable, err)
	}
	if facility == nil {
		return nil, models.NewNotFoundError(models.CodeFacilityNotFound, "facility not found")
	}

	available, err := availableQuantity(ctx, s.reader, facility, w, nil)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"facility_id": facilityID,
		"available":   available,
	}).Debug("Facility availability computed")

	return &models.FacilityAvailability{
		FacilityID: facility.ID,
		Name:       facility.Name,
		Window:     w,
		TotalStock: facility.TotalStock,
		Available:  available,
	}, nil
}

func findRoomConflict(ctx context.Context, r database.AvailabilityReader, roomID uuid.UUID, w models.TimeWindow, statuses []models.BookingStatus, exclude *uuid.UUID) (*models.Booking, error) {
	conflict, err := r.FindRoomOverlap(ctx, roomID, w, statuses, exclude)
	if err != nil {
		return nil, models.NewInfrastructureError(models.CodeStorageUnavailable, err)
	}
	return conflict, nil
}

func availableQuantity(ctx context.Context, r database.AvailabilityReader, facility *models.Facility, w models.TimeWindow, exclude *uuid.UUID) (int, error) {
	committed, err := r.CommittedQuantity(ctx, facility.ID, w, exclude)
	if err != nil {
		return 0, models.NewInfrastructureError(models.CodeStorageUnavailable, err)
	}
	available := facility.TotalStock - committed
	if available < 0 {
		available = 0
	}
	return available, nil
}
