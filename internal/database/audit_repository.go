package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/roomdesk/reservation-backend/internal/models"
)

// AuditRepository appends booking transition records
type AuditRepository struct {
	db sqlx.ExtContext
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db sqlx.ExtContext) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create inserts one audit row
func (r *AuditRepository) Create(ctx context.Context, entry *models.AuditLog) error {
	if entry == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	var fromStatus, toStatus *string
	if entry.FromStatus != nil {
		s := string(*entry.FromStatus)
		fromStatus = &s
	}
	if entry.ToStatus != nil {
		s := string(*entry.ToStatus)
		toStatus = &s
	}

	// lib/pq sends []byte as bytea, which JSONB rejects
	var details interface{}
	if len(entry.Details) > 0 {
		details = string(entry.Details)
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO booking_audit_logs (
			id, actor_id, action, booking_id, from_status, to_status,
			ip_address, user_agent, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		entry.ID, entry.ActorID, entry.Action, entry.BookingID, fromStatus, toStatus,
		entry.IPAddress, entry.UserAgent, details, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// ListByBooking returns the audit trail of one booking, oldest first
func (r *AuditRepository) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.AuditLog, error) {
	entries := []models.AuditLog{}
	err := sqlx.SelectContext(ctx, r.db, &entries, `
		SELECT id, actor_id, action, booking_id, from_status, to_status,
		       ip_address, user_agent, details, created_at
		FROM booking_audit_logs
		WHERE booking_id = $1
		ORDER BY created_at
	`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}
