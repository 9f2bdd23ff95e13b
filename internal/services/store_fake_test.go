package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/roomdesk/reservation-backend/internal/database"
	"github.com/roomdesk/reservation-backend/internal/models"
	"github.com/roomdesk/reservation-backend/pkg/notify"
	"github.com/sirupsen/logrus"
)

// memState is the whole database. WithinTx works on a copy and swaps it in on commit.
type memState struct {
	rooms      map[uuid.UUID]models.Room
	facilities map[uuid.UUID]models.Facility
	bookings   map[uuid.UUID]models.Booking
	lines      map[uuid.UUID][]models.BookingFacilityLine // by booking id
	seq        int                                        // creation order
	created    map[uuid.UUID]int
}

func (s *memState) clone() *memState {
	c := &memState{
		rooms:      make(map[uuid.UUID]models.Room, len(s.rooms)),
		facilities: make(map[uuid.UUID]models.Facility, len(s.facilities)),
		bookings:   make(map[uuid.UUID]models.Booking, len(s.bookings)),
		lines:      make(map[uuid.UUID][]models.BookingFacilityLine, len(s.lines)),
		seq:        s.seq,
		created:    make(map[uuid.UUID]int, len(s.created)),
	}
	for k, v := range s.rooms {
		c.rooms[k] = v
	}
	for k, v := range s.facilities {
		c.facilities[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = v
	}
	for k, v := range s.lines {
		c.lines[k] = append([]models.BookingFacilityLine(nil), v...)
	}
	for k, v := range s.created {
		c.created[k] = v
	}
	return c
}

// memStore implements ReservationStore, SweepStore and AuditStore in memory
type memStore struct {
	mu    sync.Mutex // serializes units like the advisory locks do
	state *memState

	failOn   map[string]error // op name -> error injected inside units and sweeps
	audits   []models.AuditLog
	lockLog  []string
	txCount  int
	commits  int
	rollback int
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			rooms:      map[uuid.UUID]models.Room{},
			facilities: map[uuid.UUID]models.Facility{},
			bookings:   map[uuid.UUID]models.Booking{},
			lines:      map[uuid.UUID][]models.BookingFacilityLine{},
			created:    map[uuid.UUID]int{},
		},
		failOn: map[string]error{},
	}
}

func (m *memStore) addRoom(name string) models.Room {
	r := models.Room{ID: uuid.New(), Name: name, Capacity: 8, IsActive: true}
	m.state.rooms[r.ID] = r
	return r
}

func (m *memStore) addFacility(name string, stock int) models.Facility {
	f := models.Facility{ID: uuid.New(), Name: name, TotalStock: stock}
	m.state.facilities[f.ID] = f
	return f
}

// seedBooking inserts a booking directly, bypassing admission
func (m *memStore) seedBooking(b models.Booking, lines ...models.BookingFacilityLine) models.Booking {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	m.state.seq++
	m.state.created[b.ID] = m.state.seq
	m.state.bookings[b.ID] = b
	for i := range lines {
		lines[i].ID = uuid.New()
		lines[i].BookingID = b.ID
	}
	m.state.lines[b.ID] = lines
	return b
}

func (m *memStore) stock(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.facilities[id].TotalStock
}

func (m *memStore) booking(id uuid.UUID) models.Booking {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.bookings[id]
}

func (m *memStore) bookingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.state.bookings)
}

func (m *memStore) fail(op string) error {
	return m.failOn[op]
}

// ---- ReservationStore ----

func (m *memStore) WithinTx(ctx context.Context, fn func(tx database.ReservationTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.txCount++

	work := m.state.clone()
	if err := fn(&memTx{store: m, state: work}); err != nil {
		m.rollback++
		return database.ClassifyError(err)
	}
	m.state = work
	m.commits++
	return nil
}

func (m *memStore) GetBooking(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("GetBooking"); err != nil {
		return nil, err
	}
	return m.state.getBooking(id), nil
}

func (m *memStore) ListBookings(ctx context.Context, filter models.BookingFilter) ([]models.Booking, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("ListBookings"); err != nil {
		return nil, 0, err
	}

	var all []models.Booking
	for id := range m.state.bookings {
		b := m.state.getBooking(id)
		if filter.UserID != nil && b.UserID != *filter.UserID {
			continue
		}
		if filter.Status != nil && b.Status != *filter.Status {
			continue
		}
		all = append(all, *b)
	}
	sort.Slice(all, func(i, j int) bool { return m.state.created[all[i].ID] > m.state.created[all[j].ID] })

	total := len(all)
	start := filter.Offset()
	if start > total {
		start = total
	}
	end := start + filter.Limit
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *memStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getRoom(id), nil
}

func (m *memStore) GetFacility(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.getFacility(id), nil
}

func (m *memStore) FindRoomOverlap(ctx context.Context, roomID uuid.UUID, w models.TimeWindow, statuses []models.BookingStatus, exclude *uuid.UUID) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.findOverlap(func(b models.Booking) bool { return b.RoomID == roomID }, w, statuses, exclude), nil
}

func (m *memStore) CommittedQuantity(ctx context.Context, facilityID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.committed(facilityID, w, exclude), nil
}

// ---- SweepStore ----

func (m *memStore) ListStalePending(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	return m.list("ListStalePending", limit, func(b models.Booking) bool {
		return b.Status == models.BookingStatusPending && !b.StartTime.After(now)
	})
}

func (m *memStore) ListFinishedWithoutFacilities(ctx context.Context, now time.Time, limit int) ([]models.Booking, error) {
	return m.list("ListFinishedWithoutFacilities", limit, func(b models.Booking) bool {
		return b.Status == models.BookingStatusApproved && !b.EndTime.After(now) && len(m.state.lines[b.ID]) == 0
	})
}

func (m *memStore) ListDueReminders(ctx context.Context, now, until time.Time, limit int) ([]models.Booking, error) {
	return m.list("ListDueReminders", limit, func(b models.Booking) bool {
		return b.Status == models.BookingStatusApproved && !b.ReminderSent &&
			b.StartTime.After(now) && !b.StartTime.After(until)
	})
}

func (m *memStore) CancelIfStalePending(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return m.update("CancelIfStalePending", id, func(b *models.Booking) bool {
		if b.Status != models.BookingStatusPending || b.StartTime.After(now) {
			return false
		}
		b.Status = models.BookingStatusCancelled
		return true
	})
}

func (m *memStore) CompleteIfFinished(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	return m.update("CompleteIfFinished", id, func(b *models.Booking) bool {
		if b.Status != models.BookingStatusApproved || b.EndTime.After(now) || len(m.state.lines[b.ID]) > 0 {
			return false
		}
		b.Status = models.BookingStatusCompleted
		return true
	})
}

func (m *memStore) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.update("MarkReminderSent", id, func(b *models.Booking) bool {
		if b.Status != models.BookingStatusApproved || b.ReminderSent {
			return false
		}
		b.ReminderSent = true
		return true
	})
}

func (m *memStore) list(op string, limit int, match func(models.Booking) bool) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(op); err != nil {
		return nil, err
	}
	var out []models.Booking
	for _, b := range m.state.bookings {
		if match(b) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) update(op string, id uuid.UUID, apply func(b *models.Booking) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(op + ":" + id.String()); err != nil {
		return false, err
	}
	b, ok := m.state.bookings[id]
	if !ok {
		return false, nil
	}
	if !apply(&b) {
		return false, nil
	}
	m.state.bookings[id] = b
	return true, nil
}

// ---- AuditStore ----

func (m *memStore) Create(ctx context.Context, entry *models.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("AuditCreate"); err != nil {
		return err
	}
	m.audits = append(m.audits, *entry)
	return nil
}

func (m *memStore) ListByBooking(ctx context.Context, bookingID uuid.UUID) ([]models.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.AuditLog
	for _, a := range m.audits {
		if a.BookingID == bookingID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ---- memState queries ----

func (s *memState) getBooking(id uuid.UUID) *models.Booking {
	b, ok := s.bookings[id]
	if !ok {
		return nil
	}
	b.Facilities = nil
	for _, l := range s.lines[id] {
		l.FacilityName = s.facilities[l.FacilityID].Name
		b.Facilities = append(b.Facilities, l)
	}
	return &b
}

func (s *memState) getRoom(id uuid.UUID) *models.Room {
	r, ok := s.rooms[id]
	if !ok {
		return nil
	}
	return &r
}

func (s *memState) getFacility(id uuid.UUID) *models.Facility {
	f, ok := s.facilities[id]
	if !ok {
		return nil
	}
	return &f
}

func (s *memState) findOverlap(match func(models.Booking) bool, w models.TimeWindow, statuses []models.BookingStatus, exclude *uuid.UUID) *models.Booking {
	var found *models.Booking
	for id, b := range s.bookings {
		if exclude != nil && id == *exclude {
			continue
		}
		if !match(b) || !statusIn(b.Status, statuses) || !b.Window().Overlaps(w) {
			continue
		}
		if found == nil || s.created[id] < s.created[found.ID] {
			found = s.getBooking(id)
		}
	}
	return found
}

func (s *memState) committed(facilityID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) int {
	total := 0
	for id, b := range s.bookings {
		if exclude != nil && id == *exclude {
			continue
		}
		if !statusIn(b.Status, models.NonTerminalStatuses) || !b.Window().Overlaps(w) {
			continue
		}
		for _, l := range s.lines[id] {
			if l.FacilityID == facilityID {
				total += l.Quantity
			}
		}
	}
	return total
}

func statusIn(s models.BookingStatus, set []models.BookingStatus) bool {
	for _, x := range set {
		if x == s {
			return true
		}
	}
	return false
}

// memTx is one open unit over a private copy of the state
type memTx struct {
	store *memStore
	state *memState
}

func (t *memTx) fail(op string) error { return t.store.fail(op) }

func (t *memTx) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	return t.state.getRoom(id), nil
}

func (t *memTx) GetFacility(ctx context.Context, id uuid.UUID) (*models.Facility, error) {
	return t.state.getFacility(id), nil
}

func (t *memTx) FindRoomOverlap(ctx context.Context, roomID uuid.UUID, w models.TimeWindow, statuses []models.BookingStatus, exclude *uuid.UUID) (*models.Booking, error) {
	return t.state.findOverlap(func(b models.Booking) bool { return b.RoomID == roomID }, w, statuses, exclude), nil
}

func (t *memTx) CommittedQuantity(ctx context.Context, facilityID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (int, error) {
	return t.state.committed(facilityID, w, exclude), nil
}

func (t *memTx) LockKeys(ctx context.Context, keys ...string) error {
	t.store.lockLog = append(t.store.lockLog, keys...)
	return nil
}

func (t *memTx) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	return t.state.getBooking(id), nil
}

func (t *memTx) CountUserBookings(ctx context.Context, userID uuid.UUID, status models.BookingStatus) (int, error) {
	n := 0
	for _, b := range t.state.bookings {
		if b.UserID == userID && b.Status == status {
			n++
		}
	}
	return n, nil
}

func (t *memTx) FindUserOverlap(ctx context.Context, userID uuid.UUID, w models.TimeWindow, exclude *uuid.UUID) (*models.Booking, error) {
	return t.state.findOverlap(func(b models.Booking) bool { return b.UserID == userID }, w, models.NonTerminalStatuses, exclude), nil
}

func (t *memTx) LockFacilities(ctx context.Context, ids []uuid.UUID) ([]models.Facility, error) {
	var out []models.Facility
	for _, id := range ids {
		if f, ok := t.state.facilities[id]; ok {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	return out, nil
}

func (t *memTx) InsertBooking(ctx context.Context, booking *models.Booking) error {
	if err := t.fail("InsertBooking"); err != nil {
		return err
	}
	if booking.ID == uuid.Nil {
		booking.ID = uuid.New()
	}
	for i := range booking.Facilities {
		booking.Facilities[i].ID = uuid.New()
		booking.Facilities[i].BookingID = booking.ID
	}
	stored := *booking
	stored.Facilities = nil
	t.state.seq++
	t.state.created[booking.ID] = t.state.seq
	t.state.bookings[booking.ID] = stored
	t.state.lines[booking.ID] = append([]models.BookingFacilityLine(nil), booking.Facilities...)
	return nil
}

func (t *memTx) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) (bool, error) {
	if err := t.fail("UpdateBookingStatus"); err != nil {
		return false, err
	}
	b, ok := t.state.bookings[id]
	if !ok || b.Status != from {
		return false, nil
	}
	b.Status = to
	t.state.bookings[id] = b
	return true, nil
}

func (t *memTx) DecrementStock(ctx context.Context, facilityID uuid.UUID, quantity int) (bool, error) {
	if err := t.fail("DecrementStock:" + facilityID.String()); err != nil {
		return false, err
	}
	f, ok := t.state.facilities[facilityID]
	if !ok || f.TotalStock < quantity {
		return false, nil
	}
	f.TotalStock -= quantity
	t.state.facilities[facilityID] = f
	return true, nil
}

func (t *memTx) IncrementStock(ctx context.Context, facilityID uuid.UUID, quantity int) error {
	if err := t.fail("IncrementStock:" + facilityID.String()); err != nil {
		return err
	}
	f, ok := t.state.facilities[facilityID]
	if !ok {
		return fmt.Errorf("facility %s not found", facilityID)
	}
	f.TotalStock += quantity
	t.state.facilities[facilityID] = f
	return nil
}

func (t *memTx) DeleteBooking(ctx context.Context, id uuid.UUID) error {
	delete(t.state.bookings, id)
	delete(t.state.lines, id)
	delete(t.state.created, id)
	return nil
}

// recordingSink captures notifications
type recordingSink struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (r *recordingSink) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingSink) events(bookingID uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, n := range r.sent {
		if n.BookingID == bookingID {
			out = append(out, n.Event)
		}
	}
	return out
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

var (
	_ database.ReservationStore = (*memStore)(nil)
	_ database.SweepStore       = (*memStore)(nil)
	_ database.ReservationTx    = (*memTx)(nil)
	_ AuditStore                = (*memStore)(nil)
)
