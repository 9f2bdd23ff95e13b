package services

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/roomdesk/reservation-backend/internal/database"
	"github.com/roomdesk/reservation-backend/internal/models"
	"github.com/roomdesk/reservation-backend/pkg/notify"
	"github.com/sirupsen/logrus"
)

// BookingServiceConfig holds reservation policy
type BookingServiceConfig struct {
	MaxApprovedPerUser int  // per-user cap on concurrently APPROVED bookings
	StrictRoomOverlap  bool // reject overlapping PENDING requests on one room at creation
	Clock              func() time.Time
}

// DefaultBookingServiceConfig returns the default policy
func DefaultBookingServiceConfig() BookingServiceConfig {
	return BookingServiceConfig{
		MaxApprovedPerUser: 3,
		StrictRoomOverlap:  false,
		Clock:              time.Now,
	}
}

// FacilityLineInput asks for quantity units of one facility
type FacilityLineInput struct {
	FacilityID uuid.UUID
	Quantity   int
}

// CreateBookingInput is a parsed create request
type CreateBookingInput struct {
	RoomID     uuid.UUID
	Window     models.TimeWindow
	Purpose    string
	Facilities []FacilityLineInput
}

// BookingService is the Reservation Orchestrator and the Booking State Machine.
// Every multi-row mutation runs in one atomic unit that first takes the room
// lock, then the owner lock, then facility row locks in ascending id order.
type BookingService struct {
	store    database.ReservationStore
	notifier notify.Sink
	audit    *AuditService
	config   BookingServiceConfig
	logger   *logrus.Logger
}

// NewBookingService creates a new booking service
func NewBookingService(
	store database.ReservationStore,
	notifier notify.Sink,
	audit *AuditService,
	config BookingServiceConfig,
	logger *logrus.Logger,
) *BookingService {
	if config.Clock == nil {
		config.Clock = time.Now
	}
	if config.MaxApprovedPerUser < 1 {
		config.MaxApprovedPerUser = DefaultBookingServiceConfig().MaxApprovedPerUser
	}
	return &BookingService{
		store:    store,
		notifier: notifier,
		audit:    audit,
		config:   config,
		logger:   logger,
	}
}

// ============================================================================
// CREATE
// ============================================================================

// CreateBooking admits a PENDING booking with its facility lines, or rejects it
// without persisting anything
func (s *BookingService) CreateBooking(ctx context.Context, actor Actor, input CreateBookingInput) (*models.Booking, error) {
	lines, err := validateCreateInput(&input)
	if err != nil {
		return nil, err
	}

	booking := &models.Booking{
		UserID:     actor.UserID,
		RoomID:     input.RoomID,
		StartTime:  input.Window.Start,
		EndTime:    input.Window.End,
		Purpose:    input.Purpose,
		Status:     models.BookingStatusPending,
		Facilities: lines,
	}

	err = s.store.WithinTx(ctx, func(tx database.ReservationTx) error {
		if err := tx.LockKeys(ctx, roomLockKey(input.RoomID), userLockKey(actor.UserID)); err != nil {
			return err
		}

		// 1. Room exists
		room, err := tx.GetRoom(ctx, input.RoomID)
		if err != nil {
			return err
		}
		if room == nil {
			return models.NewNotFoundError(models.CodeRoomNotFound, "room not found")
		}
		if !room.IsActive {
			return models.NewValidationError(models.CodeRoomInactive, "room is not available for booking")
		}

		// 2. Approved-booking cap
		if err := s.checkApprovedCap(ctx, tx, actor.UserID); err != nil {
			return err
		}

		// 3. A user cannot be in two places at once
		own, err := tx.FindUserOverlap(ctx, actor.UserID, input.Window, nil)
		if err != nil {
			return err
		}
		if own != nil {
			return models.NewSelfOverlapError(own.ID)
		}

		if s.config.StrictRoomOverlap {
			conflict, err := findRoomConflict(ctx, tx, input.RoomID, input.Window, models.NonTerminalStatuses, nil)
			if err != nil {
				return err
			}
			if conflict != nil {
				return models.NewRoomConflictError(conflict.ID)
			}
		}

		// 4. Windowed ledger for every requested facility
		if len(lines) > 0 {
			facilities, err := s.lockFacilities(ctx, tx, lines)
			if err != nil {
				return err
			}
			for i := range booking.Facilities {
				line := &booking.Facilities[i]
				facility := facilities[line.FacilityID]
				available, err := availableQuantity(ctx, tx, facility, input.Window, nil)
				if err != nil {
					return err
				}
				if line.Quantity > available {
					return models.NewInsufficientStockError(facility, line.Quantity, available)
				}
				line.FacilityName = facility.Name
			}
		}

		return tx.InsertBooking(ctx, booking)
	})
	if err != nil {
		s.logRejected(err, "create", logrus.Fields{"user_id": actor.UserID, "room_id": input.RoomID})
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"user_id":    booking.UserID,
		"room_id":    booking.RoomID,
		"facilities": len(booking.Facilities),
	}).Info("Booking created")

	s.audit.Record(ctx, actor, AuditEvent{
		Action:    models.AuditActionCreate,
		BookingID: booking.ID,
		To:        statusPtr(models.BookingStatusPending),
	})
	s.notify(ctx, booking, notify.EventBookingCreated, notify.SeverityInfo,
		fmt.Sprintf("Your booking request for %s is waiting for approval", formatWindow(booking)))

	return booking, nil
}

// validateCreateInput rejects malformed requests and merges duplicate facility
// lines. Lines come back sorted by facility id.
func validateCreateInput(input *CreateBookingInput) ([]models.BookingFacilityLine, error) {
	if !input.Window.Valid() {
		return nil, models.NewValidationError(models.CodeInvalidRange, "start time must be before end time")
	}
	if input.RoomID == uuid.Nil {
		return nil, models.NewValidationError(models.CodeInvalidInput, "room_id is required")
	}
	input.Purpose = strings.TrimSpace(input.Purpose)
	if input.Purpose == "" {
		return nil, models.NewValidationError(models.CodeInvalidInput, "purpose is required")
	}

	merged := make(map[uuid.UUID]int, len(input.Facilities))
	for _, f := range input.Facilities {
		if f.FacilityID == uuid.Nil {
			return nil, models.NewValidationError(models.CodeInvalidInput, "facility_id is required")
		}
		if f.Quantity <= 0 {
			return nil, models.NewValidationError(models.CodeInvalidQuantity, "facility quantity must be a positive integer")
		}
		if f.Quantity > math.MaxInt32-merged[f.FacilityID] {
			return nil, models.NewValidationError(models.CodeInvalidQuantity, "facility quantity is too large")
		}
		merged[f.FacilityID] += f.Quantity
	}

	lines := make([]models.BookingFacilityLine, 0, len(merged))
	for id, qty := range merged {
		lines = append(lines, models.BookingFacilityLine{FacilityID: id, Quantity: qty})
	}
	sortLines(lines)
	return lines, nil
}

// ============================================================================
// STATE MACHINE
// ============================================================================

// SetStatus approves or rejects a PENDING booking. Setting the current status
// again is a no-op.
func (s *BookingService) SetStatus(ctx context.Context, actor Actor, bookingID uuid.UUID, status models.BookingStatus) (*models.Booking, error) {
	if !status.IsValid() {
		return nil, models.NewValidationError(models.CodeInvalidInput, fmt.Sprintf("unknown status %q", status))
	}

	var from models.BookingStatus
	unchanged := false

	booking, err := s.transition(ctx, bookingID, func(tx database.ReservationTx, b *models.Booking) error {
		from = b.Status
		if b.Status == status {
			unchanged = true
			return nil
		}
		if status != models.BookingStatusApproved && status != models.BookingStatusRejected {
			return models.NewStateError(b.Status, status)
		}
		if !b.Status.CanTransitionTo(status) {
			return models.NewStateError(b.Status, status)
		}

		if status == models.BookingStatusApproved {
			if err := s.approve(ctx, tx, b); err != nil {
				return err
			}
		}
		return s.moveStatus(ctx, tx, b, status)
	})
	if err != nil {
		s.logRejected(err, string(status), logrus.Fields{"booking_id": bookingID})
		return nil, err
	}
	if unchanged {
		return booking, nil
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"from":       from,
		"to":         status,
	}).Info("Booking status updated")

	action, event, severity, message := models.AuditActionReject, notify.EventBookingRejected, notify.SeverityWarning,
		fmt.Sprintf("Your booking for %s was rejected", formatWindow(booking))
	if status == models.BookingStatusApproved {
		action, event, severity, message = models.AuditActionApprove, notify.EventBookingApproved, notify.SeveritySuccess,
			fmt.Sprintf("Your booking for %s was approved", formatWindow(booking))
	}

	s.audit.Record(ctx, actor, AuditEvent{Action: action, BookingID: booking.ID, From: statusPtr(from), To: statusPtr(status)})
	s.notify(ctx, booking, event, severity, message)
	return booking, nil
}

// approve re-validates a PENDING booking under lock and checks its facility
// units out of stock. Any failure aborts the whole unit.
func (s *BookingService) approve(ctx context.Context, tx database.ReservationTx, b *models.Booking) error {
	if !s.config.Clock().Before(b.StartTime) {
		return models.NewBookingExpiredError(b.ID)
	}

	// First approval wins: no other APPROVED booking may overlap on this room
	conflict, err := findRoomConflict(ctx, tx, b.RoomID, b.Window(), []models.BookingStatus{models.BookingStatusApproved}, &b.ID)
	if err != nil {
		return err
	}
	if conflict != nil {
		return models.NewRoomConflictError(conflict.ID)
	}

	if err := s.checkApprovedCap(ctx, tx, b.UserID); err != nil {
		return err
	}

	if !b.HasFacilities() {
		return nil
	}

	facilities, err := s.lockFacilities(ctx, tx, b.Facilities)
	if err != nil {
		return err
	}
	for _, line := range b.Facilities {
		facility := facilities[line.FacilityID]
		if facility.TotalStock < line.Quantity {
			return models.NewInsufficientStockError(facility, line.Quantity, facility.TotalStock)
		}
		ok, err := tx.DecrementStock(ctx, line.FacilityID, line.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return models.NewInsufficientStockError(facility, line.Quantity, facility.TotalStock)
		}
		facility.TotalStock -= line.Quantity
	}
	return nil
}

// ConfirmReturn credits borrowed units back and completes an APPROVED booking
func (s *BookingService) ConfirmReturn(ctx context.Context, actor Actor, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.transition(ctx, bookingID, func(tx database.ReservationTx, b *models.Booking) error {
		if b.Status != models.BookingStatusApproved {
			return models.NewStateError(b.Status, models.BookingStatusCompleted)
		}
		if err := s.creditStock(ctx, tx, b); err != nil {
			return err
		}
		return s.moveStatus(ctx, tx, b, models.BookingStatusCompleted)
	})
	if err != nil {
		s.logRejected(err, "return", logrus.Fields{"booking_id": bookingID})
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"facilities": len(booking.Facilities),
	}).Info("Booking returned and completed")

	s.audit.Record(ctx, actor, AuditEvent{
		Action:    models.AuditActionReturn,
		BookingID: booking.ID,
		From:      statusPtr(models.BookingStatusApproved),
		To:        statusPtr(models.BookingStatusCompleted),
	})
	s.notify(ctx, booking, notify.EventBookingReturned, notify.SeveritySuccess,
		fmt.Sprintf("Equipment for your booking on %s was returned, thank you", formatWindow(booking)))
	return booking, nil
}

// CancelBooking withdraws a PENDING or APPROVED booking. Only the owner or an
// admin may cancel; stock checked out on approval is credited back.
func (s *BookingService) CancelBooking(ctx context.Context, actor Actor, bookingID uuid.UUID) (*models.Booking, error) {
	var from models.BookingStatus

	booking, err := s.transition(ctx, bookingID, func(tx database.ReservationTx, b *models.Booking) error {
		if !actor.IsAdmin && b.UserID != actor.UserID {
			return models.NewForbiddenError(models.CodeNotOwner, "only the booking owner or an admin can cancel")
		}
		from = b.Status
		if !b.Status.CanTransitionTo(models.BookingStatusCancelled) {
			return models.NewStateError(b.Status, models.BookingStatusCancelled)
		}
		if b.Status == models.BookingStatusApproved {
			if err := s.creditStock(ctx, tx, b); err != nil {
				return err
			}
		}
		return s.moveStatus(ctx, tx, b, models.BookingStatusCancelled)
	})
	if err != nil {
		s.logRejected(err, "cancel", logrus.Fields{"booking_id": bookingID, "user_id": actor.UserID})
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":   booking.ID,
		"from":         from,
		"cancelled_by": actor.UserID,
	}).Info("Booking cancelled")

	s.audit.Record(ctx, actor, AuditEvent{
		Action:    models.AuditActionCancel,
		BookingID: booking.ID,
		From:      statusPtr(from),
		To:        statusPtr(models.BookingStatusCancelled),
	})
	if actor.UserID != booking.UserID {
		s.notify(ctx, booking, notify.EventBookingCancelled, notify.SeverityWarning,
			fmt.Sprintf("Your booking for %s was cancelled by an administrator", formatWindow(booking)))
	}
	return booking, nil
}

// Purge deletes a finished booking and its lines. Bookings that may still hold
// room time or stock cannot be purged.
func (s *BookingService) Purge(ctx context.Context, actor Actor, bookingID uuid.UUID) error {
	var from models.BookingStatus

	_, err := s.transition(ctx, bookingID, func(tx database.ReservationTx, b *models.Booking) error {
		from = b.Status
		if !b.Status.IsTerminal() {
			return models.NewNotTerminalError(b.Status)
		}
		return tx.DeleteBooking(ctx, b.ID)
	})
	if err != nil {
		s.logRejected(err, "purge", logrus.Fields{"booking_id": bookingID})
		return err
	}

	s.logger.WithField("booking_id", bookingID).Info("Booking purged")
	s.audit.Record(ctx, actor, AuditEvent{Action: models.AuditActionPurge, BookingID: bookingID, From: statusPtr(from)})
	return nil
}

// transition loads the booking, locks room then owner then the booking row, and
// runs fn in one atomic unit
func (s *BookingService) transition(ctx context.Context, bookingID uuid.UUID, fn func(tx database.ReservationTx, b *models.Booking) error) (*models.Booking, error) {
	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, models.NewInfrastructureError(models.CodeStorageUnavailable, err)
	}
	if current == nil {
		return nil, models.NewNotFoundError(models.CodeBookingNotFound, "booking not found")
	}

	var locked *models.Booking
	err = s.store.WithinTx(ctx, func(tx database.ReservationTx) error {
		if err := tx.LockKeys(ctx, roomLockKey(current.RoomID), userLockKey(current.UserID)); err != nil {
			return err
		}
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if b == nil {
			return models.NewNotFoundError(models.CodeBookingNotFound, "booking not found")
		}
		if err := fn(tx, b); err != nil {
			return err
		}
		locked = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locked, nil
}

func (s *BookingService) moveStatus(ctx context.Context, tx database.ReservationTx, b *models.Booking, to models.BookingStatus) error {
	ok, err := tx.UpdateBookingStatus(ctx, b.ID, b.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return models.NewStateError(b.Status, to)
	}
	b.Status = to
	b.UpdatedAt = s.config.Clock()
	return nil
}

// creditStock is the inverse of approve's decrement
func (s *BookingService) creditStock(ctx context.Context, tx database.ReservationTx, b *models.Booking) error {
	if !b.HasFacilities() {
		return nil
	}
	if _, err := s.lockFacilities(ctx, tx, b.Facilities); err != nil {
		return err
	}
	for _, line := range b.Facilities {
		if err := tx.IncrementStock(ctx, line.FacilityID, line.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// lockFacilities row-locks every facility referenced by lines and fails with
// not-found if one is missing
func (s *BookingService) lockFacilities(ctx context.Context, tx database.ReservationTx, lines []models.BookingFacilityLine) (map[uuid.UUID]*models.Facility, error) {
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.FacilityID)
	}
	sortIDs(ids)

	rows, err := tx.LockFacilities(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*models.Facility, len(rows))
	for i := range rows {
		byID[rows[i].ID] = &rows[i]
	}
	for _, id := range ids {
		if _, ok := byID[id]; !ok {
			e := models.NewNotFoundError(models.CodeFacilityNotFound, "facility not found")
			e.Details = map[string]interface{}{"facility_id": id}
			return nil, e
		}
	}
	return byID, nil
}

func (s *BookingService) checkApprovedCap(ctx context.Context, tx database.ReservationTx, userID uuid.UUID) error {
	approved, err := tx.CountUserBookings(ctx, userID, models.BookingStatusApproved)
	if err != nil {
		return err
	}
	if approved >= s.config.MaxApprovedPerUser {
		return models.NewApprovedLimitError(s.config.MaxApprovedPerUser, approved)
	}
	return nil
}

// ============================================================================
// QUERIES
// ============================================================================

// GetBooking returns one booking to its owner or an admin
func (s *BookingService) GetBooking(ctx context.Context, actor Actor, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, models.NewInfrastructureError(models.CodeStorageUnavailable, err)
	}
	if booking == nil {
		return nil, models.NewNotFoundError(models.CodeBookingNotFound, "booking not found")
	}
	if !actor.IsAdmin && booking.UserID != actor.UserID {
		return nil, models.NewForbiddenError(models.CodeNotOwner, "you can only view your own bookings")
	}
	return booking, nil
}

// ListBookings returns one page of bookings, newest first
func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) (*models.BookingListResponse, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, models.NewValidationError(models.CodeInvalidInput, fmt.Sprintf("unknown status %q", *filter.Status))
	}
	filter.Normalize()

	bookings, total, err := s.store.ListBookings(ctx, filter)
	if err != nil {
		return nil, models.NewInfrastructureError(models.CodeStorageUnavailable, err)
	}
	return &models.BookingListResponse{
		Bookings: bookings,
		Total:    total,
		Page:     filter.Page,
		Limit:    filter.Limit,
	}, nil
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *BookingService) notify(ctx context.Context, b *models.Booking, event string, severity notify.Severity, message string) {
	dispatchNotification(ctx, s.notifier, s.logger, b, event, severity, message, s.config.Clock())
}

func (s *BookingService) logRejected(err error, op string, fields logrus.Fields) {
	entry := s.logger.WithFields(fields).WithField("operation", op).WithError(err)
	if models.KindOf(err) == models.KindInfrastructure {
		entry.Error("Booking operation failed")
		return
	}
	entry.Info("Booking operation rejected")
}

// dispatchNotification is fire-and-forget: failures are logged, never returned
func dispatchNotification(ctx context.Context, sink notify.Sink, logger *logrus.Logger, b *models.Booking, event string, severity notify.Severity, message string, now time.Time) {
	if sink == nil {
		return
	}
	err := sink.Notify(context.WithoutCancel(ctx), notify.Notification{
		UserID:     b.UserID,
		BookingID:  b.ID,
		Event:      event,
		Message:    message,
		Severity:   severity,
		OccurredAt: now.UTC(),
	})
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": b.ID,
			"user_id":    b.UserID,
			"event":      event,
		}).Error("Failed to send notification")
	}
}

func roomLockKey(id uuid.UUID) string { return "room:" + id.String() }
func userLockKey(id uuid.UUID) string { return "user:" + id.String() }

func formatWindow(b *models.Booking) string {
	return fmt.Sprintf("%s - %s", b.StartTime.UTC().Format("2006-01-02 15:04"), b.EndTime.UTC().Format("15:04 MST"))
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return bytes.Compare(ids[i][:], ids[j][:]) < 0 })
}

func sortLines(lines []models.BookingFacilityLine) {
	sort.Slice(lines, func(i, j int) bool {
		return bytes.Compare(lines[i].FacilityID[:], lines[j].FacilityID[:]) < 0
	})
}
