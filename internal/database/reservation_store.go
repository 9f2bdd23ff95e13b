package database

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/roomdesk/reservation-backend/internal/models"
)

// AvailabilityReader answers catalog and windowed-availability questions. It is
// served both by the pool and from inside an atomic unit.
type AvailabilityReader interface {
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	GetFacility(ctx context.Context, id uuid.UUID) (*models.Facility, error)
	FindRoomOverlap(ctx context.Context, roomID uuid.UUID, w models.TimeWindow, statuses []models.BookingStatus, exclude *uuid.UUID) (*models.Booking, error)
	CommittedQuantity(ctx context.Context, facilityID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (int, error)
}

// ReservationTx is everything an atomic unit may read or write. All calls go
// through one database transaction.
type ReservationTx interface {
	AvailabilityReader

	// LockKeys takes advisory locks in the order given, held until the unit ends
	LockKeys(ctx context.Context, keys ...string) error
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	CountUserBookings(ctx context.Context, userID uuid.UUID, status models.BookingStatus) (int, error)
	FindUserOverlap(ctx context.Context, userID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (*models.Booking, error)
	LockFacilities(ctx context.Context, ids []uuid.UUID) ([]models.Facility, error)
	InsertBooking(ctx context.Context, booking *models.Booking) error
	UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (bool, error)
	DecrementStock(ctx context.Context, facilityID uuid.UUID, quantity int) (bool, error)
	IncrementStock(ctx context.Context, facilityID uuid.UUID, quantity int) error
	DeleteBooking(ctx context.Context, id uuid.UUID) error
}

// ReservationStore is the persistence port of the booking service
type ReservationStore interface {
	AvailabilityReader

	// WithinTx commits when fn returns nil and rolls back otherwise
	WithinTx(ctx context.Context, fn func(tx ReservationTx) error) error
	GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error)
}

// SweepStore is the persistence port of the reconciliation sweep. Every write is
// a single conditional statement so a concurrent user action wins cleanly.
type SweepStore interface {
	ListStalePending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	ListFinishedWithoutFacilities(ctx context.Context, now time.Time, limit int) ([]models.Booking, error)
	ListDueReminders(ctx context.Context, now, until time.Time, limit int) ([]models.Booking, error)
	CancelIfStalePending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	CompleteIfFinished(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)
}

// ============================================================================
// POSTGRES IMPLEMENTATION
// ============================================================================

// PostgresReservationStore implements ReservationStore and SweepStore on sqlx
type PostgresReservationStore struct {
	db *PostgresDB
	*repositories
}

// NewPostgresReservationStore creates a store bound to the connection pool
func NewPostgresReservationStore(db *PostgresDB) *PostgresReservationStore {
	return &PostgresReservationStore{
		db:           db,
		repositories: newRepositories(db),
	}
}

// WithinTx runs fn in one transaction; see PostgresDB.WithinTx
func (s *PostgresReservationStore) WithinTx(ctx context.Context, fn func(tx ReservationTx) error) error {
	return s.db.WithinTx(ctx, func(tx *sqlx.Tx) error {
		return fn(&postgresReservationTx{tx: tx, repositories: newRepositories(tx)})
	})
}

func (s *PostgresReservationStore) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return s.bookings.GetByID(ctx, id)
}

func (s *PostgresReservationStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	return s.bookings.List(ctx, filter)
}

func (s *PostgresReservationStore) ListStalePending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	return s.bookings.ListStalePending(ctx, now, limit)
}

func (s *PostgresReservationStore) ListFinishedWithoutFacilities(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	return s.bookings.ListFinishedWithoutFacilities(ctx, now, limit)
}

func (s *PostgresReservationStore) ListDueReminders(ctx context.Context, now, until time.Time, limit int) ([]models.Booking, error) {
	return s.bookings.ListDueReminders(ctx, now, until, limit)
}

func (s *PostgresReservationStore) CancelIfStalePending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return s.bookings.CancelIfStalePending(ctx, id, now)
}

func (s *PostgresReservationStore) CompleteIfFinished(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return s.bookings.CompleteIfFinished(ctx, id, now)
}

func (s *PostgresReservationStore) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	return s.bookings.MarkReminderSent(ctx, id)
}

// postgresReservationTx binds the repositories to one open transaction
type postgresReservationTx struct {
	tx *sqlx.Tx
	*repositories
}

func (t *postgresReservationTx) LockKeys(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := LockKey(ctx, t.tx, key); err != nil {
			return err
		}
	}
	return nil
}

func (t *postgresReservationTx) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return t.bookings.GetByIDForUpdate(ctx, id)
}

func (t *postgresReservationTx) CountUserBookings(ctx context.Context, userID uuid.UUID, status models.BookingStatus) (int, error) {
	return t.bookings.CountByUserAndStatus(ctx, userID, status)
}

func (t *postgresReservationTx) FindUserOverlap(ctx context.Context, userID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (*models.Booking, error) {
	return t.bookings.FindUserOverlap(ctx, userID, w, exclude)
}

func (t *postgresReservationTx) LockFacilities(ctx context.Context, ids []uuid.UUID) ([]models.Facility, error) {
	return t.facilities.LockForUpdate(ctx, ids)
}

func (t *postgresReservationTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	return t.bookings.Create(ctx, booking)
}

func (t *postgresReservationTx) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (bool, error) {
	return t.bookings.UpdateStatus(ctx, id, from, to)
}

func (t *postgresReservationTx) DecrementStock(ctx context.Context, facilityID uuid.UUID, quantity int) (bool, error) {
	return t.facilities.DecrementStock(ctx, facilityID, quantity)
}

func (t *postgresReservationTx) IncrementStock(ctx context.Context, facilityID uuid.UUID, quantity int) error {
	return t.facilities.IncrementStock(ctx, facilityID, quantity)
}

func (t *postgresReservationTx) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	return t.bookings.Delete(ctx, id)
}

// repositories groups the per-table repositories sharing one handle and serves
// the AvailabilityReader half of both the store and the transaction
type repositories struct {
	bookings   *BookingRepository
	facilities *FacilityRepository
	rooms      *RoomRepository
}

func newRepositories(db sqlx.ExtContext) *repositories {
	return &repositories{
		bookings:   NewBookingRepository(db),
		facilities: NewFacilityRepository(db),
		rooms:      NewRoomRepository(db),
	}
}

func (r *repositories) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return r.rooms.GetByID(ctx, id)
}

func (r *repositories) GetFacility(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	return r.facilities.GetByID(ctx, id)
}

func (r *repositories) FindRoomOverlap(ctx context.Context, roomID uuid.UUID, w models.TimeWindow, statuses []models.BookingStatus, exclude *uuid.UUID) (*models.Booking, error) {
	return r.bookings.FindRoomOverlap(ctx, roomID, w, statuses, exclude)
}

func (r *repositories) CommittedQuantity(ctx context.Context, facilityID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (int, error) {
	return r.facilities.CommittedQuantity(ctx, facilityID, w, exclude)
}

var (
	_ ReservationStore = (*PostgresReservationStore)(nil)
	_ SweepStore       = (*PostgresReservationStore)(nil)
	_ ReservationTx    = (*postgresReservationTx)(nil)
)
