package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/roomdesk/reservation-backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_Record(t *testing.T) {
	tests := []struct {
		name      string
		actor     Actor
		details   map[string]interface{}
		wantKeys  []string
		wantAdmin bool
	}{
		{
			name:     "Caller Details Kept",
			actor:    Actor{UserID: uuid.New(), IPAddress: "198.51.100.7", UserAgent: "Mozilla/5.0"},
			details:  map[string]interface{}{"reason": "changed plans"},
			wantKeys: []string{"reason", "device_info"},
		},
		{
			name:      "Admin Flag Added",
			actor:     Actor{UserID: uuid.New(), IsAdmin: true, IPAddress: "203.0.113.1", UserAgent: "curl/8.0"},
			details:   map[string]interface{}{"reason": "double booked"},
			wantKeys:  []string{"reason", "device_info", "admin"},
			wantAdmin: true,
		},
		{
			name:     "Nil Details",
			actor:    SystemActor,
			wantKeys: []string{"device_info"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			svc := NewAuditService(store, quietLogger())
			bookingID := uuid.New()

			var before map[string]interface{}
			if tt.details != nil {
				before = make(map[string]interface{}, len(tt.details))
				for k, v := range tt.details {
					before[k] = v
				}
			}

			svc.Record(context.Background(), tt.actor, AuditEvent{
				Action:    models.AuditActionCancel,
				BookingID: bookingID,
				From:      statusPtr(models.BookingStatusPending),
				To:        statusPtr(models.BookingStatusCancelled),
				Details:   tt.details,
			})

			assert.Equal(t, before, tt.details, "caller's details map must not be modified")

			history, err := svc.History(context.Background(), bookingID)
			require.NoError(t, err)
			require.Len(t, history, 1)

			var stored map[string]interface{}
			require.NoError(t, json.Unmarshal(history[0].Details, &stored))
			assert.Len(t, stored, len(tt.wantKeys))
			for _, k := range tt.wantKeys {
				assert.Contains(t, stored, k)
			}
			if tt.wantAdmin {
				assert.Equal(t, true, stored["admin"])
			}
			if tt.actor.UserID == uuid.Nil {
				assert.Nil(t, history[0].ActorID)
			}
		})
	}
}

func TestAuditService_RecordReusedDetails(t *testing.T) {
	store := newMemStore()
	svc := NewAuditService(store, quietLogger())
	shared := map[string]interface{}{"reason": "ended without borrowed facilities"}

	svc.Record(context.Background(), Actor{UserID: uuid.New(), IsAdmin: true, UserAgent: "curl/8.0"}, AuditEvent{
		Action: models.AuditActionApprove, BookingID: uuid.New(), Details: shared,
	})
	second := uuid.New()
	svc.Record(context.Background(), SystemActor, AuditEvent{
		Action: models.AuditActionComplete, BookingID: second, Details: shared,
	})

	history, err := svc.History(context.Background(), second)
	require.NoError(t, err)
	require.Len(t, history, 1)

	var stored map[string]interface{}
	require.NoError(t, json.Unmarshal(history[0].Details, &stored))
	assert.NotContains(t, stored, "admin", "an earlier admin event must not leak into later rows")
	assert.Len(t, shared, 1)
}
