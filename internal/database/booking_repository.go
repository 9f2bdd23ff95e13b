package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/roomdesk/reservation-backend/internal/models"
)

const bookingColumns = `id, user_id, room_id, start_time, end_time, purpose, status, reminder_sent, created_at, updated_at`

// BookingRepository handles database operations for bookings and booking_facilities.
// It runs against either the pool or an open transaction.
type BookingRepository struct {
	db sqlx.ExtContext
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db sqlx.ExtContext) *BookingRepository {
	return &BookingRepository{db: db}
}

// GetByID retrieves a booking with its facility lines. Returns nil, nil when missing.
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
}

// GetByIDForUpdate is GetByID with a row lock held until the transaction ends
func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return r.get(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 FOR UPDATE`, id)
}

func (r *BookingRepository) get(ctx context.Context, query string, id uuid.UUID) (*models.Booking, error) {
	var booking models.Booking
	err := sqlx.GetContext(ctx, r.db, &booking, query, id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	lines, err := r.GetLines(ctx, []uuid.UUID{booking.ID})
	if err != nil {
		return nil, err
	}
	booking.Facilities = lines[booking.ID]
	return &booking, nil
}

// GetLines loads facility lines for a set of bookings, keyed by booking id
func (r *BookingRepository) GetLines(ctx context.Context, bookingIDs []uuid.UUID) (map[uuid.UUID][]models.BookingFacilityLine, error) {
	result := make(map[uuid.UUID][]models.BookingFacilityLine, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return result, nil
	}

	query, args, err := sqlx.In(`
		SELECT bf.id, bf.booking_id, bf.facility_id, f.name AS facility_name, bf.quantity
		FROM booking_facilities bf
		JOIN facilities f ON f.id = bf.facility_id
		WHERE bf.booking_id IN (?)
		ORDER BY bf.facility_id
	`, bookingIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to build line query: %w", err)
	}

	var lines []models.BookingFacilityLine
	if err := sqlx.SelectContext(ctx, r.db, &lines, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get booking facilities: %w", err)
	}

	for _, line := range lines {
		result[line.BookingID] = append(result[line.BookingID], line)
	}
	return result, nil
}

// List returns one page of bookings matching filter, newest first, plus the total count
func (r *BookingRepository) List(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	filter.Normalize()

	var conditions []string
	var args []interface{}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}

	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := sqlx.GetContext(ctx, r.db, &total, `SELECT COUNT(*) FROM bookings`+where, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count bookings: %w", err)
	}

	pageArgs := append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM bookings%s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		bookingColumns, where, len(args)+1, len(args)+2)

	bookings := []models.Booking{}
	if err := sqlx.SelectContext(ctx, r.db, &bookings, query, pageArgs...); err != nil {
		return nil, 0, fmt.Errorf("failed to list bookings: %w", err)
	}

	if err := r.attachLines(ctx, bookings); err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func (r *BookingRepository) attachLines(ctx context.Context, bookings []models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(bookings))
	for i := range bookings {
		ids[i] = bookings[i].ID
	}
	lines, err := r.GetLines(ctx, ids)
	if err != nil {
		return err
	}
	for i := range bookings {
		bookings[i].Facilities = lines[bookings[i].ID]
	}
	return nil
}

// FindRoomOverlap returns the oldest booking on roomID in one of statuses whose
// window overlaps w, or nil when the room is free
func (r *BookingRepository) FindRoomOverlap(ctx context.Context, roomID uuid.UUID, w models.TimeWindow, statuses []models.BookingStatus, exclude *uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE room_id = $1 AND status = ANY($2) AND start_time < $4 AND end_time > $3`
	args := []interface{}{roomID, pq.Array(statusStrings(statuses)), w.Start, w.End}
	return r.findOverlap(ctx, query, args, exclude)
}

// FindUserOverlap returns a non-terminal booking of userID overlapping w, on any room
func (r *BookingRepository) FindUserOverlap(ctx context.Context, userID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
		WHERE user_id = $1 AND status = ANY($2) AND start_time < $4 AND end_time > $3`
	args := []interface{}{userID, pq.Array(statusStrings(models.NonTerminalStatuses)), w.Start, w.End}
	return r.findOverlap(ctx, query, args, exclude)
}

func (r *BookingRepository) findOverlap(ctx context.Context, query string, args []interface{}, exclude *uuid.UUID) (*models.Booking, error) {
	if exclude != nil {
		args = append(args, *exclude)
		query += fmt.Sprintf(" AND id <> $%d", len(args))
	}
	query += ` ORDER BY created_at LIMIT 1`

	var booking models.Booking
	err := sqlx.GetContext(ctx, r.db, &booking, query, args...)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check overlap: %w", err)
	}
	return &booking, nil
}

// CountByUserAndStatus counts a user's bookings in one status
func (r *BookingRepository) CountByUserAndStatus(ctx context.Context, userID uuid.UUID, status models.BookingStatus) (int, error) {
	var count int
	err := sqlx.GetContext(ctx, r.db, &count,
		`SELECT COUNT(*) FROM bookings WHERE user_id = $1 AND status = $2`, userID, string(status))
	if err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

// Create inserts the booking and its facility lines. Call inside a transaction.
func (r *BookingRepository) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}

	err := sqlx.GetContext(ctx, r.db, booking, `
		INSERT INTO bookings (id, user_id, room_id, start_time, end_time, purpose, status, reminder_sent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE)
		RETURNING `+bookingColumns,
		booking.ID, booking.UserID, booking.RoomID, booking.StartTime, booking.EndTime,
		booking.Purpose, string(booking.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	for i := range booking.Facilities {
		line := &booking.Facilities[i]
		if line.ID == uuid.Nil {
			line.ID = uuid.New()
		}
		line.BookingID = booking.ID
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO booking_facilities (id, booking_id, facility_id, quantity)
			VALUES ($1, $2, $3, $4)
		`, line.ID, line.BookingID, line.FacilityID, line.Quantity)
		if err != nil {
			return fmt.Errorf("failed to insert booking facility: %w", err)
		}
	}
	return nil
}

// UpdateStatus moves a booking from one status to another. Returns false when the
// row was not in the expected status.
func (r *BookingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
	`, id, string(from), string(to))
	if err != nil {
		return false, fmt.Errorf("failed to update booking status: %w", err)
	}
	return affectedOne(result)
}

// Delete removes a booking; facility lines cascade
func (r *BookingRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete booking: %w", err)
	}
	return nil
}

// ============================================================================
// RECONCILIATION SWEEP
// ============================================================================

// ListStalePending returns PENDING bookings whose start time has passed
func (r *BookingRepository) ListStalePending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := sqlx.SelectContext(ctx, r.db, &bookings, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'pending' AND start_time <= $1
		ORDER BY start_time
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale pending bookings: %w", err)
	}
	return bookings, nil
}

// ListFinishedWithoutFacilities returns APPROVED bookings that have ended and borrowed nothing
func (r *BookingRepository) ListFinishedWithoutFacilities(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := sqlx.SelectContext(ctx, r.db, &bookings, `
		SELECT `+bookingColumns+` FROM bookings b
		WHERE b.status = 'approved' AND b.end_time <= $1
		  AND NOT EXISTS (SELECT 1 FROM booking_facilities bf WHERE bf.booking_id = b.id)
		ORDER BY b.end_time
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list finished bookings: %w", err)
	}
	return bookings, nil
}

// ListDueReminders returns APPROVED bookings starting in (now, until] that have not been reminded
func (r *BookingRepository) ListDueReminders(ctx context.Context, now, until time.Time, limit int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := sqlx.SelectContext(ctx, r.db, &bookings, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'approved' AND reminder_sent = FALSE
		  AND start_time > $1 AND start_time <= $2
		ORDER BY start_time
		LIMIT $3
	`, now, until, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due reminders: %w", err)
	}
	return bookings, nil
}

// CancelIfStalePending cancels a booking only if it is still PENDING and already started
func (r *BookingRepository) CancelIfStalePending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status = 'pending' AND start_time <= $2
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to cancel stale booking: %w", err)
	}
	return affectedOne(result)
}

// CompleteIfFinished completes a booking only if it is still APPROVED, ended and has no lines
func (r *BookingRepository) CompleteIfFinished(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings b SET status = 'completed', updated_at = NOW()
		WHERE b.id = $1 AND b.status = 'approved' AND b.end_time <= $2
		  AND NOT EXISTS (SELECT 1 FROM booking_facilities bf WHERE bf.booking_id = b.id)
	`, id, now)
	if err != nil {
		return false, fmt.Errorf("failed to complete booking: %w", err)
	}
	return affectedOne(result)
}

// MarkReminderSent flips reminder_sent once. Returns false if another sweep got there first.
func (r *BookingRepository) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE bookings SET reminder_sent = TRUE, updated_at = NOW()
		WHERE id = $1 AND status = 'approved' AND reminder_sent = FALSE
	`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	return affectedOne(result)
}

func affectedOne(result sql.Result) (bool, error) {
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return rows == 1, nil
}

func statusStrings(statuses []models.BookingStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
