// Package notify delivers booking notifications to the external inbox service.
// Delivery is fire-and-forget: callers log failures and carry on.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Severity mirrors the inbox notification types
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Events emitted by the reservation engine
const (
	EventBookingCreated       = "booking.created"
	EventBookingApproved      = "booking.approved"
	EventBookingRejected      = "booking.rejected"
	EventBookingCancelled     = "booking.cancelled"
	EventBookingReturned      = "booking.returned"
	EventBookingAutoCancelled = "booking.auto_cancelled"
	EventBookingAutoCompleted = "booking.auto_completed"
	EventBookingReminder      = "booking.reminder"
)

// Notification is one message for one user
type Notification struct {
	UserID     uuid.UUID `json:"user_id"`
	BookingID  uuid.UUID `json:"booking_id"`
	Event      string    `json:"event"`
	Message    string    `json:"message"`
	Severity   Severity  `json:"severity"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink accepts notifications
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}
