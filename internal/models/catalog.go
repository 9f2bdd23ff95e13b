package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a bookable meeting room. Owned by the catalog service, read-only here.
type Room struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	Capacity  int       `db:"capacity" json:"capacity"`
	Location  string    `db:"location" json:"location"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Facility is borrowable equipment. TotalStock counts units currently in the cage;
// it is decremented on approval and credited back on return or cancellation.
type Facility struct {
	ID         uuid.UUID `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	TotalStock int       `db:"total_stock" json:"total_stock"`
}

// RoomAvailability answers GET /rooms/:id/availability
type RoomAvailability struct {
	RoomID uuid.UUID  `json:"room_id"`
	Window TimeWindow `json:"window"`
	Free   bool       `json:"free"`
}

// FacilityAvailability answers GET /facilities/:id/availability
type FacilityAvailability struct {
	FacilityID uuid.UUID  `json:"facility_id"`
	Name       string     `json:"name"`
	Window     TimeWindow `json:"window"`
	TotalStock int        `json:"total_stock"`
	Available  int        `json:"available"`
}
