package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit actions recorded for booking transitions
const (
	AuditActionCreate   = "booking_create"
	AuditActionApprove  = "booking_approve"
	AuditActionReject   = "booking_reject"
	AuditActionCancel   = "booking_cancel"
	AuditActionReturn   = "booking_return"
	AuditActionComplete = "booking_complete"
	AuditActionPurge    = "booking_purge"
)

// AuditLog is one row of booking_audit_logs
type AuditLog struct {
	ID         uuid.UUID      `db:"id" json:"id"`
	ActorID    *uuid.UUID     `db:"actor_id" json:"actor_id,omitempty"`
	Action     string         `db:"action" json:"action"`
	BookingID  uuid.UUID      `db:"booking_id" json:"booking_id"`
	FromStatus *BookingStatus `db:"from_status" json:"from_status,omitempty"`
	ToStatus   *BookingStatus `db:"to_status" json:"to_status,omitempty"`
	IPAddress  string         `db:"ip_address" json:"ip_address"`
	UserAgent  string         `db:"user_agent" json:"user_agent"`
	Details    []byte         `db:"details" json:"-"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}
