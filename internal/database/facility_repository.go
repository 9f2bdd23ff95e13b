package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/roomdesk/reservation-backend/internal/models"
)

// FacilityRepository reads facilities and moves their stock counter
type FacilityRepository struct {
	db sqlx.ExtContext
}

// NewFacilityRepository creates a new FacilityRepository
func NewFacilityRepository(db sqlx.ExtContext) *FacilityRepository {
	return &FacilityRepository{db: db}
}

// GetByID retrieves a facility. Returns nil, nil when missing.
func (r *FacilityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	var facility models.Facility
	err := sqlx.GetContext(ctx, r.db, &facility, `SELECT id, name, total_stock FROM facilities WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get facility: %w", err)
	}
	return &facility, nil
}

// LockForUpdate row-locks the given facilities in ascending id order so that
// concurrent units touching the same set never deadlock. Missing ids are simply
// absent from the result.
func (r *FacilityRepository) LockForUpdate(ctx context.Context, ids []uuid.UUID) ([]models.Facility, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, name, total_stock FROM facilities
		WHERE id IN (?)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build facility lock query: %w", err)
	}

	var facilities []models.Facility
	if err := sqlx.SelectContext(ctx, r.db, &facilities, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to lock facilities: %w", err)
	}
	return facilities, nil
}

// CommittedQuantity sums the quantity of facilityID held by non-terminal bookings
// whose window overlaps w
func (r *FacilityRepository) CommittedQuantity(ctx context.Context, facilityID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (int, error) {
	query := `
		SELECT COALESCE(SUM(bf.quantity), 0)
		FROM booking_facilities bf
		JOIN bookings b ON b.id = bf.booking_id
		WHERE bf.facility_id = $1 AND b.status = ANY($2)
		  AND b.start_time < $4 AND b.end_time > $3`
	args := []interface{}{facilityID, pq.Array(statusStrings(models.NonTerminalStatuses)), w.Start, w.End}
	if exclude != nil {
		args = append(args, *exclude)
		query += ` AND b.id <> $5`
	}

	var committed int
	if err := sqlx.GetContext(ctx, r.db, &committed, query, args...); err != nil {
		return 0, fmt.Errorf("failed to sum committed quantity: %w", err)
	}
	return committed, nil
}

// DecrementStock checks quantity units out of the cage. Returns false, leaving
// the row untouched, when the stock would go negative.
func (r *FacilityRepository) DecrementStock(ctx context.Context, facilityID uuid.UUID, quantity int) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE facilities SET total_stock = total_stock - $2
		WHERE id = $1 AND total_stock >= $2
	`, facilityID, quantity)
	if err != nil {
		return false, fmt.Errorf("failed to decrement stock: %w", err)
	}
	return affectedOne(result)
}

// IncrementStock credits quantity units back
func (r *FacilityRepository) IncrementStock(ctx context.Context, facilityID uuid.UUID, quantity int) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE facilities SET total_stock = total_stock + $2 WHERE id = $1
	`, facilityID, quantity)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	ok, err := affectedOne(result)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("failed to increment stock: facility %s not found", facilityID)
	}
	return nil
}
