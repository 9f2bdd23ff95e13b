package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/roomdesk/reservation-backend/internal/models"
)

// RoomRepository is a read-only view of the room catalog
type RoomRepository struct {
	db sqlx.ExtContext
}

// NewRoomRepository creates a new RoomRepository
func NewRoomRepository(db sqlx.ExtContext) *RoomRepository {
	return &RoomRepository{db: db}
}

// GetByID retrieves a room. Returns nil, nil when missing.
func (r *RoomRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	var room models.Room
	err := sqlx.GetContext(ctx, r.db, &room, `
		SELECT id, name, capacity, location, is_active, created_at
		FROM rooms
		WHERE id = $1
	`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}
