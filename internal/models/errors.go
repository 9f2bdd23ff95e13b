package models

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies domain failures so transports can map them to status codes
type ErrorKind string

const (
	KindValidation     ErrorKind = "validation"
	KindConflict       ErrorKind = "conflict"
	KindNotFound       ErrorKind = "not_found"
	KindState          ErrorKind = "state"
	KindForbidden      ErrorKind = "forbidden"
	KindInfrastructure ErrorKind = "infrastructure"
)

// Error codes surfaced to clients
const (
	CodeInvalidRange        = "INVALID_TIME_RANGE"
	CodeInvalidInput        = "INVALID_INPUT"
	CodeInvalidQuantity     = "INVALID_QUANTITY"
	CodeRoomNotFound        = "ROOM_NOT_FOUND"
	CodeRoomInactive        = "ROOM_INACTIVE"
	CodeFacilityNotFound    = "FACILITY_NOT_FOUND"
	CodeBookingNotFound     = "BOOKING_NOT_FOUND"
	CodeApprovedLimit       = "APPROVED_LIMIT_REACHED"
	CodeSelfOverlap         = "USER_TIME_CONFLICT"
	CodeRoomConflict        = "ROOM_TIME_CONFLICT"
	CodeInsufficientStock   = "INSUFFICIENT_STOCK"
	CodeInvalidTransition   = "INVALID_STATUS_TRANSITION"
	CodeBookingExpired      = "BOOKING_EXPIRED"
	CodeNotOwner            = "NOT_BOOKING_OWNER"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeTransactionConflict = "TRANSACTION_CONFLICT"
)

// BookingError is the single error type returned by the reservation engine for
// anything the caller can act on
type BookingError struct {
	Kind    ErrorKind              `json:"-"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Err     error                  `json:"-"`
}

func (e *BookingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *BookingError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match on kind+code against a template error
func (e *BookingError) Is(target error) bool {
	t, ok := target.(*BookingError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && (t.Code == "" || e.Code == t.Code)
}

// KindOf returns the kind of err, or infrastructure for anything that is not a BookingError
func KindOf(err error) ErrorKind {
	var be *BookingError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInfrastructure
}

// IsKind reports whether err is a BookingError of the given kind
func IsKind(err error, kind ErrorKind) bool {
	var be *BookingError
	return errors.As(err, &be) && be.Kind == kind
}

// ============================================================================
// CONSTRUCTORS
// ============================================================================

func NewValidationError(code, message string) *BookingError {
	return &BookingError{Kind: KindValidation, Code: code, Message: message}
}

func NewNotFoundError(code, message string) *BookingError {
	return &BookingError{Kind: KindNotFound, Code: code, Message: message}
}

func NewStateError(current, requested BookingStatus) *BookingError {
	return &BookingError{
		Kind:    KindState,
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("cannot move booking from %s to %s", current, requested),
		Details: map[string]interface{}{
			"current_status":   current,
			"requested_status": requested,
		},
	}
}

func NewForbiddenError(code, message string) *BookingError {
	return &BookingError{Kind: KindForbidden, Code: code, Message: message}
}

// NewInfrastructureError wraps a storage failure. The message stays generic.
func NewInfrastructureError(code string, err error) *BookingError {
	return &BookingError{
		Kind:    KindInfrastructure,
		Code:    code,
		Message: "the operation could not be completed, please retry",
		Err:     err,
	}
}

// NewRoomConflictError names the booking already holding the slot
func NewRoomConflictError(conflicting uuid.UUID) *BookingError {
	return &BookingError{
		Kind:    KindConflict,
		Code:    CodeRoomConflict,
		Message: "room is already booked for an overlapping time window",
		Details: map[string]interface{}{"conflicting_booking_id": conflicting},
	}
}

// NewSelfOverlapError names the user's own booking that overlaps the request
func NewSelfOverlapError(conflicting uuid.UUID) *BookingError {
	return &BookingError{
		Kind:    KindConflict,
		Code:    CodeSelfOverlap,
		Message: "you already have a booking in this time window",
		Details: map[string]interface{}{"conflicting_booking_id": conflicting},
	}
}

// NewApprovedLimitError reports the per-user approved booking cap
func NewApprovedLimitError(limit, current int) *BookingError {
	return &BookingError{
		Kind:    KindConflict,
		Code:    CodeApprovedLimit,
		Message: fmt.Sprintf("maximum of %d approved bookings reached", limit),
		Details: map[string]interface{}{"limit": limit, "approved": current},
	}
}

// NewInsufficientStockError names the facility and the shortfall
func NewInsufficientStockError(f *Facility, requested, available int) *BookingError {
	if available < 0 {
		available = 0
	}
	return &BookingError{
		Kind:    KindConflict,
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("not enough %s available (requested %d, available %d)", f.Name, requested, available),
		Details: map[string]interface{}{
			"facility_id":   f.ID,
			"facility_name": f.Name,
			"requested":     requested,
			"available":     available,
			"shortfall":     requested - available,
		},
	}
}

// NewBookingExpiredError rejects acting on a booking whose window already started
func NewBookingExpiredError(bookingID uuid.UUID) *BookingError {
	return &BookingError{
		Kind:    KindState,
		Code:    CodeBookingExpired,
		Message: "booking has already started",
		Details: map[string]interface{}{"booking_id": bookingID},
	}
}

// NewNotTerminalError rejects deleting a booking that may still hold room time or stock
func NewNotTerminalError(current BookingStatus) *BookingError {
	return &BookingError{
		Kind:    KindState,
		Code:    CodeInvalidTransition,
		Message: fmt.Sprintf("booking is still %s and cannot be deleted", current),
		Details: map[string]interface{}{"current_status": current},
	}
}
