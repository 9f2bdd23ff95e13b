package models

import (
	"time"

	"github.com/google/uuid"
)

// ============================================================================
// BOOKING STATUS (matches DB ENUM booking_status)
// ============================================================================

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending   BookingStatus = "pending"   // Requested, waiting for admin decision
	BookingStatusApproved  BookingStatus = "approved"  // Admitted, facility stock checked out
	BookingStatusRejected  BookingStatus = "rejected"  // Declined by admin
	BookingStatusCancelled BookingStatus = "cancelled" // Withdrawn by owner/admin or expired unapproved
	BookingStatusCompleted BookingStatus = "completed" // Finished, equipment returned
)

// bookingTransitions lists the allowed next states for every status.
// Terminal statuses have no entry.
var bookingTransitions = map[BookingStatus][]BookingStatus{
	BookingStatusPending:  {BookingStatusApproved, BookingStatusRejected, BookingStatusCancelled},
	BookingStatusApproved: {BookingStatusCompleted, BookingStatusCancelled},
}

// NonTerminalStatuses are the statuses that still consume room time and facility capacity
var NonTerminalStatuses = []BookingStatus{BookingStatusPending, BookingStatusApproved}

// IsValid reports whether s is one of the defined statuses
func (s BookingStatus) IsValid() bool {
	switch s {
	case BookingStatusPending, BookingStatusApproved, BookingStatusRejected,
		BookingStatusCancelled, BookingStatusCompleted:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible from s
func (s BookingStatus) IsTerminal() bool {
	_, ok := bookingTransitions[s]
	return !ok
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	for _, allowed := range bookingTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ============================================================================
// ENTITIES
// ============================================================================

// Booking is a reservation of one room for a half-open time window
type Booking struct {
	ID           uuid.UUID     `db:"id" json:"id"`
	UserID       uuid.UUID     `db:"user_id" json:"user_id"`
	RoomID       uuid.UUID     `db:"room_id" json:"room_id"`
	StartTime    time.Time     `db:"start_time" json:"start_time"`
	EndTime      time.Time     `db:"end_time" json:"end_time"`
	Purpose      string        `db:"purpose" json:"purpose"`
	Status       BookingStatus `db:"status" json:"status"`
	ReminderSent bool          `db:"reminder_sent" json:"reminder_sent"`
	CreatedAt    time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time     `db:"updated_at" json:"updated_at"`

	// Loaded separately from booking_facilities
	Facilities []BookingFacilityLine `db:"-" json:"facilities"`
}

// Window returns the booking's time window
func (b *Booking) Window() TimeWindow {
	return TimeWindow{Start: b.StartTime, End: b.EndTime}
}

// HasFacilities reports whether the booking borrowed any equipment
func (b *Booking) HasFacilities() bool {
	return len(b.Facilities) > 0
}

// BookingFacilityLine is one borrowed facility on a booking
type BookingFacilityLine struct {
	ID           uuid.UUID `db:"id" json:"id"`
	BookingID    uuid.UUID `db:"booking_id" json:"booking_id"`
	FacilityID   uuid.UUID `db:"facility_id" json:"facility_id"`
	FacilityName string    `db:"facility_name" json:"facility_name,omitempty"`
	Quantity     int       `db:"quantity" json:"quantity"`
}

// BookingFilter selects bookings for listing
type BookingFilter struct {
	UserID *uuid.UUID
	Status *BookingStatus
	Page   int // 1-based
	Limit  int
}

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// Normalize clamps pagination to sane bounds
func (f *BookingFilter) Normalize() {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
}

// Offset returns the SQL offset for the current page
func (f BookingFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

// ============================================================================
// REQUEST / RESPONSE DTOs
// ============================================================================

// FacilityRequest asks for a quantity of one facility
type FacilityRequest struct {
	FacilityID string `json:"facility_id" binding:"required"`
	Quantity   int    `json:"quantity"`
}

// CreateBookingRequest is the body of POST /bookings
type CreateBookingRequest struct {
	RoomID     string            `json:"room_id" binding:"required"`
	StartTime  time.Time         `json:"start_time" binding:"required"`
	EndTime    time.Time         `json:"end_time" binding:"required"`
	Purpose    string            `json:"purpose" binding:"required"`
	Facilities []FacilityRequest `json:"facilities"`
}

// UpdateStatusRequest is the body of PATCH /admin/bookings/:id/status
type UpdateStatusRequest struct {
	Status BookingStatus `json:"status" binding:"required"`
}

// BookingListResponse is a page of bookings
type BookingListResponse struct {
	Bookings []Booking `json:"bookings"`
	Total    int       `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
}
