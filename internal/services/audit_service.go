package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/roomdesk/reservation-backend/internal/models"
	"github.com/roomdesk/reservation-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// AuditStore persists audit rows
type AuditStore interface {
	Create(ctx context.Context, entry *models.AuditLog) error
	ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.AuditLog, error)
}

// Actor is the caller of a booking operation as resolved by the identity provider
type Actor struct {
	UserID    uuid.UUID
	IsAdmin   bool
	IPAddress string
	UserAgent string
}

// SystemActor performs the reconciliation sweep
var SystemActor = Actor{IPAddress: "system", UserAgent: "reconciliation-sweep"}

// AuditEvent describes one booking transition to record
type AuditEvent struct {
	Action    string
	BookingID uuid.UUID
	From      *models.BookingStatus // nil on create
	To        *models.BookingStatus // nil on purge
	Details   map[string]interface{}
}

// AuditService records the booking audit trail. Recording happens after the
// atomic unit has committed and never fails the calling operation.
type AuditService struct {
	store  AuditStore
	logger *logrus.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(store AuditStore, logger *logrus.Logger) *AuditService {
	return &AuditService{store: store, logger: logger}
}

// Record writes one audit row for actor
func (s *AuditService) Record(ctx context.Context, actor Actor, event AuditEvent) {
	if s == nil {
		return
	}

	details := make(map[string]interface{}, len(event.Details)+2)
	for k, v := range event.Details {
		details[k] = v
	}
	details["device_info"] = utils.ParseUserAgent(actor.UserAgent)
	if actor.IsAdmin {
		details["admin"] = true
	}

	raw, err := json.Marshal(details)
	if err != nil {
		s.logger.WithError(err).WithField("booking_id", event.BookingID).Warn("Failed to encode audit details")
		raw = nil
	}

	entry := &models.AuditLog{
		Action:     event.Action,
		BookingID:  event.BookingID,
		FromStatus: event.From,
		ToStatus:   event.To,
		IPAddress:  actor.IPAddress,
		UserAgent:  actor.UserAgent,
		Details:    raw,
	}
	if actor.UserID != uuid.Nil {
		actorID := actor.UserID
		entry.ActorID = &actorID
	}

	if err := s.store.Create(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"booking_id": event.BookingID,
			"action":     event.Action,
		}).Error("Failed to write audit log")
	}
}

// History returns the audit trail of one booking
func (s *AuditService) History(ctx context.Context, bookingID uuid.UUID) ([]models.AuditLog, error) {
	entries, err := s.store.ListByBooking(ctx, bookingID)
	if err != nil {
		return nil, models.NewInfrastructureError(models.CodeStorageUnavailable, err)
	}
	return entries, nil
}

func statusPtr(s models.BookingStatus) *models.BookingStatus {
	return &s
}
